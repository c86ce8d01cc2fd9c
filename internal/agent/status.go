package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sightline/sightline/internal/llm"
	"github.com/sightline/sightline/internal/logging"
	"github.com/sightline/sightline/internal/scheduler"
)

// CognitiveStatus is the externally visible state of the engine.
type CognitiveStatus struct {
	Running        bool            `json:"running"`
	Cycles         int64           `json:"cycles"`
	AnomaliesSeen  int64           `json:"anomalies_seen"`
	KnowledgeCount int             `json:"knowledge_count"`
	ActiveGoals    int             `json:"active_goals"`
	TotalGoals     int             `json:"total_goals"`
	PendingActions int             `json:"pending_actions"`
	QueueDepth     int             `json:"queue_depth"`
	LastReflection time.Time       `json:"last_reflection,omitempty"`
	Insights       []string        `json:"insights,omitempty"`
	Scheduler      scheduler.Stats `json:"scheduler"`
}

// Status reports the engine's current state.
func (e *Engine) Status() CognitiveStatus {
	e.mu.Lock()
	running := e.running
	cycles := e.cycles
	anomalies := e.anomaliesSeen
	lastReflection := e.lastReflection
	insights := make([]string, len(e.insights))
	copy(insights, e.insights)
	e.mu.Unlock()

	active, total := e.deps.Goals.Count()
	return CognitiveStatus{
		Running:        running,
		Cycles:         cycles,
		AnomaliesSeen:  anomalies,
		KnowledgeCount: e.deps.Knowledge.Count(),
		ActiveGoals:    active,
		TotalGoals:     total,
		PendingActions: len(e.deps.Executor.Pending()),
		QueueDepth:     e.deps.Scheduler.QueueDepth(),
		LastReflection: lastReflection,
		Insights:       insights,
		Scheduler:      e.deps.Scheduler.GetStats(),
	}
}

// Insights returns the insights produced by the latest reflection.
func (e *Engine) Insights() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.insights))
	copy(out, e.insights)
	return out
}

// SecurityRecommendations surfaces the tactical layer's advice.
func (e *Engine) SecurityRecommendations() []string {
	if e.deps.Strategy == nil {
		return nil
	}
	return e.deps.Strategy.Recommendations()
}

// StatusText renders a human-readable summary of the engine's state,
// preferring the completion service's own narration.
func (e *Engine) StatusText(ctx context.Context) string {
	st := e.Status()

	if e.deps.Completion != nil && e.deps.Completion.Enabled() {
		items := []llm.ContextItem{
			{Label: "State", Content: fmt.Sprintf(
				"running=%t cycles=%d anomalies=%d goals=%d/%d pending_actions=%d",
				st.Running, st.Cycles, st.AnomaliesSeen, st.ActiveGoals, st.TotalGoals, st.PendingActions)},
		}
		for _, goal := range e.deps.Goals.Active() {
			items = append(items, llm.ContextItem{Label: "Goal", Content: goal.Description})
		}
		for _, k := range e.deps.Knowledge.Recent(5) {
			items = append(items, llm.ContextItem{Label: "Knowledge", Content: k.Content})
		}
		analysis, err := e.deps.Completion.Analyze(ctx, llm.AnalysisRequest{
			Kind:    llm.KindSituationAssessment,
			Context: items,
		})
		if err == nil && analysis.Reasoning != "" {
			return analysis.Reasoning
		}
		if err != nil {
			logging.Debug("model status narration failed, using summary: %v", err)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Processed %d analysis cycles with %d anomalies observed. ",
		st.Cycles, st.AnomaliesSeen)
	fmt.Fprintf(&sb, "%d of %d goals active, %d actions pending, %d knowledge items retained.",
		st.ActiveGoals, st.TotalGoals, st.PendingActions, st.KnowledgeCount)
	if goal := e.deps.Goals.HighestPriorityActive(); goal != nil {
		fmt.Fprintf(&sb, " Current focus: %s.", goal.Description)
	}
	return sb.String()
}
