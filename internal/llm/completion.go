package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// AnalysisKind selects the reasoning prompt the service uses.
type AnalysisKind string

const (
	KindAnomalyAnalysis     AnalysisKind = "anomaly-analysis"
	KindSituationAssessment AnalysisKind = "situation-assessment"
	KindResponsePlanning    AnalysisKind = "response-planning"
	KindPredictiveAnalysis  AnalysisKind = "predictive-analysis"
	KindCrossCameraAnalysis AnalysisKind = "cross-camera-analysis"
)

// ContextItem is one labeled piece of evidence passed to the model.
type ContextItem struct {
	Label   string
	Content string
}

// AnalysisRequest carries the analysis kind and supporting context.
type AnalysisRequest struct {
	Kind    AnalysisKind
	Context []ContextItem
}

// SuggestedAction is one action the model recommends.
type SuggestedAction struct {
	Kind        string         `json:"action"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	Params      map[string]any `json:"params,omitempty"`
}

// Analysis is the structured result of a completion call.
type Analysis struct {
	Reasoning  string            `json:"reasoning"`
	Confidence float64           `json:"confidence"`
	Actions    []SuggestedAction `json:"actions"`
}

var systemPrompts = map[AnalysisKind]string{
	KindAnomalyAnalysis: "You are the reasoning core of a security monitoring system. " +
		"Analyze the reported anomaly and decide how serious it is. " +
		"Consider time of day, detected objects, and motion patterns.",
	KindSituationAssessment: "You are the reasoning core of a security monitoring system. " +
		"Assess the overall security situation from the evidence provided and " +
		"identify anything that warrants attention.",
	KindResponsePlanning: "You are the reasoning core of a security monitoring system. " +
		"Plan a proportionate response to the situation described. Prefer " +
		"verification before escalation.",
	KindPredictiveAnalysis: "You are the reasoning core of a security monitoring system. " +
		"Predict how the observed activity is likely to develop and what should " +
		"be watched.",
	KindCrossCameraAnalysis: "You are the reasoning core of a security monitoring system. " +
		"Correlate observations across multiple cameras and identify subjects or " +
		"patterns that span them.",
}

const responseFormat = `Respond with a single JSON object, no prose outside it:
{
  "reasoning": "your analysis",
  "confidence": 0.0,
  "actions": [
    {"action": "monitor|alert|track|analyze-further|cross-reference|predict|recommend", "description": "...", "confidence": 0.0, "params": {}}
  ]
}`

// Service wraps the completion client with analysis prompts and
// structured-output parsing.
type Service struct {
	client  *Client
	enabled bool
}

// NewService creates the completion service. When enabled is false the
// service reports itself unavailable and callers use heuristics.
func NewService(cfg Config, enabled bool) *Service {
	return &Service{
		client:  NewClient(cfg),
		enabled: enabled,
	}
}

// Enabled reports whether completion calls can be attempted.
func (s *Service) Enabled() bool {
	return s.enabled && s.client.IsConfigured()
}

// Analyze runs one analysis request and parses the structured response.
// Any failure, including malformed model output, is returned as an error
// so the caller can fall back.
func (s *Service) Analyze(ctx context.Context, req AnalysisRequest) (*Analysis, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("completion service not available")
	}

	system, ok := systemPrompts[req.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown analysis kind: %s", req.Kind)
	}

	var sb strings.Builder
	for _, item := range req.Context {
		sb.WriteString(item.Label)
		sb.WriteString(":\n")
		sb.WriteString(item.Content)
		sb.WriteString("\n\n")
	}
	sb.WriteString(responseFormat)

	text, err := s.client.Chat(ctx, system, sb.String())
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}

	analysis, err := parseAnalysis(text)
	if err != nil {
		return nil, fmt.Errorf("unparseable completion output: %w", err)
	}
	return analysis, nil
}

// Insights asks for free-form observations about recent system behavior,
// one per line. Used during reflection.
func (s *Service) Insights(ctx context.Context, items []ContextItem) ([]string, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("completion service not available")
	}

	system := "You are the reasoning core of a security monitoring system. " +
		"Review the recent activity summary and list concrete insights about " +
		"patterns, recurring anomalies, or tuning opportunities. One insight " +
		"per line, no numbering."

	var sb strings.Builder
	for _, item := range items {
		sb.WriteString(item.Label)
		sb.WriteString(":\n")
		sb.WriteString(item.Content)
		sb.WriteString("\n\n")
	}

	text, err := s.client.Chat(ctx, system, sb.String())
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}

	var insights []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*• "))
		if len(line) > 10 {
			insights = append(insights, line)
		}
	}
	return insights, nil
}

// parseAnalysis extracts the JSON object from model output. Models often
// wrap JSON in code fences or surrounding prose.
func parseAnalysis(text string) (*Analysis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in output")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &analysis); err != nil {
		return nil, err
	}

	if analysis.Confidence < 0 {
		analysis.Confidence = 0
	}
	if analysis.Confidence > 1 {
		analysis.Confidence = 1
	}
	for i := range analysis.Actions {
		if analysis.Actions[i].Confidence < 0 {
			analysis.Actions[i].Confidence = 0
		}
		if analysis.Actions[i].Confidence > 1 {
			analysis.Actions[i].Confidence = 1
		}
	}
	return &analysis, nil
}
