package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/llm"
	"github.com/sightline/sightline/internal/logging"
)

// SituationReport summarizes the current security picture.
type SituationReport struct {
	GeneratedAt       time.Time     `json:"generated_at"`
	ActiveIncidents   int           `json:"active_incidents"`
	TrackedSubjects   int           `json:"tracked_subjects"`
	HighestSeverity   string        `json:"highest_severity,omitempty"`
	RecommendedCamera core.CameraID `json:"recommended_camera,omitempty"`
	Summary           string        `json:"summary"`
	Recommendations   []string      `json:"recommendations,omitempty"`
}

// Report builds a situation report. The narrative summary is
// model-written when the completion service is available; the numbers
// are always computed locally.
func (m *Manager) Report(ctx context.Context) SituationReport {
	incidents := m.ActiveIncidents()
	subjects := m.TrackedSubjects()

	report := SituationReport{
		GeneratedAt:       time.Now(),
		ActiveIncidents:   len(incidents),
		TrackedSubjects:   len(subjects),
		RecommendedCamera: m.RecommendedCamera(),
		Recommendations:   m.Recommendations(),
	}
	if len(incidents) > 0 {
		report.HighestSeverity = incidents[0].Severity.String()
	}

	if m.completion != nil && m.completion.Enabled() {
		if summary, err := m.modelSummary(ctx, incidents, subjects); err == nil {
			report.Summary = summary
			return report
		} else {
			logging.Debug("model report failed, using local summary: %v", err)
		}
	}

	report.Summary = localSummary(incidents, subjects)
	return report
}

func (m *Manager) modelSummary(ctx context.Context, incidents []*Incident, subjects []*TrackedSubject) (string, error) {
	var incLines []string
	for _, inc := range incidents {
		incLines = append(incLines, fmt.Sprintf("%s severity=%s camera=%s status=%s: %s",
			inc.Type, inc.Severity, inc.CameraID, inc.Status, inc.Description))
	}
	var subjLines []string
	for _, s := range subjects {
		subjLines = append(subjLines, fmt.Sprintf("%s threat=%.2f camera=%s recognition=%s",
			s.Type, s.ThreatScore, s.LastCamera, s.RecognitionStatus))
	}

	analysis, err := m.completion.Analyze(ctx, llm.AnalysisRequest{
		Kind: llm.KindSituationAssessment,
		Context: []llm.ContextItem{
			{Label: "Open incidents", Content: strings.Join(incLines, "\n")},
			{Label: "Tracked subjects", Content: strings.Join(subjLines, "\n")},
		},
	})
	if err != nil {
		return "", err
	}
	if analysis.Reasoning == "" {
		return "", fmt.Errorf("empty assessment")
	}
	return analysis.Reasoning, nil
}

func localSummary(incidents []*Incident, subjects []*TrackedSubject) string {
	if len(incidents) == 0 && len(subjects) == 0 {
		return "All monitored areas quiet. No open incidents or tracked subjects."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d open incident(s), %d tracked subject(s).", len(incidents), len(subjects))
	if len(incidents) > 0 {
		top := incidents[0]
		fmt.Fprintf(&sb, " Most severe: %s (%s) on camera %s, estimated resolution %s.",
			top.Type, top.Severity, top.CameraID, EstimateTimeToResolution(top.Severity))
	}
	for _, s := range subjects {
		if s.ThreatScore > 0.7 {
			fmt.Fprintf(&sb, " High-threat %s near camera %s.", s.Type, s.LastCamera)
			break
		}
	}
	return sb.String()
}

// Recommendations aggregates operator guidance across open incidents,
// most severe incidents first, without duplicates.
func (m *Manager) Recommendations() []string {
	seen := make(map[string]bool)
	var out []string
	for _, inc := range m.ActiveIncidents() {
		for _, rec := range RecommendedActions(inc) {
			if !seen[rec] {
				seen[rec] = true
				out = append(out, rec)
			}
		}
	}
	return out
}
