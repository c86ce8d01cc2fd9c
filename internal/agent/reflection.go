package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sightline/sightline/internal/actions"
	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/goals"
	"github.com/sightline/sightline/internal/knowledge"
	"github.com/sightline/sightline/internal/llm"
	"github.com/sightline/sightline/internal/logging"
	"github.com/sightline/sightline/internal/scheduler"
)

const maxInsights = 5

func (e *Engine) reflectionLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.ReflectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if err := e.deps.Scheduler.Submit(&scheduler.Task{
				Kind:     scheduler.TaskReflect,
				Priority: 1,
			}); err != nil {
				logging.Debug("reflection submit skipped: %v", err)
			}
		}
	}
}

// reflect records a state snapshot and, with enough history, distills
// insights from the recent window. Insights land back in the knowledge
// store so later cycles can act on them.
func (e *Engine) reflect(ctx context.Context, _ *scheduler.Task) error {
	snap := e.takeSnapshot()

	e.mu.Lock()
	e.snapshots = append(e.snapshots, snap)
	if len(e.snapshots) > e.cfg.SnapshotCap {
		e.snapshots = e.snapshots[len(e.snapshots)-e.cfg.SnapshotCap:]
	}
	window := make([]Snapshot, len(e.snapshots))
	copy(window, e.snapshots)
	e.lastReflection = snap.Timestamp
	e.mu.Unlock()

	if len(window) < 5 {
		return nil
	}

	insights := e.generateInsights(ctx, window)
	if len(insights) > maxInsights {
		insights = insights[:maxInsights]
	}

	e.mu.Lock()
	e.insights = insights
	e.mu.Unlock()

	for _, insight := range insights {
		if _, err := e.deps.Knowledge.Add(knowledge.Item{
			Kind:       core.KnowledgeMetaKnowledge,
			Content:    insight,
			Confidence: 0.6,
			Source:     "reflection",
		}); err != nil {
			logging.Warn("discarding insight: %v", err)
		}
	}

	e.applyRecommendations(insights)
	return nil
}

// applyRecommendations turns insights that name goals or models into
// follow-up work: an optimize goal, or a model-update action.
func (e *Engine) applyRecommendations(insights []string) {
	for _, insight := range insights {
		lower := strings.ToLower(insight)
		switch {
		case strings.Contains(lower, "goal"):
			const desc = "Review and optimize goal management"
			if _, exists := e.deps.Goals.ActiveWithDescription(desc); exists {
				continue
			}
			e.deps.Goals.Add(goals.Goal{
				Kind:        core.GoalOptimize,
				Description: desc,
				Priority:    core.PriorityLow,
			})
		case strings.Contains(lower, "model"):
			action, err := e.deps.Executor.Submit(actions.Action{
				Kind:            core.ActionUpdateModel,
				Description:     insight,
				Priority:        6,
				ExpectedUtility: 0.6,
			})
			if err != nil {
				logging.Warn("model update submit failed: %v", err)
				continue
			}
			if err := e.deps.Scheduler.Submit(&scheduler.Task{
				Kind:     scheduler.TaskExecuteAction,
				Priority: action.Priority,
				Payload:  action.ID,
			}); err != nil {
				logging.Debug("model update schedule skipped: %v", err)
			}
		}
	}
}

func (e *Engine) takeSnapshot() Snapshot {
	e.mu.Lock()
	cycles := e.cycles
	anomalies := e.anomaliesSeen
	e.mu.Unlock()

	active, _ := e.deps.Goals.Count()
	incidents := 0
	if e.deps.Strategy != nil {
		incidents = len(e.deps.Strategy.ActiveIncidents())
	}
	return Snapshot{
		Timestamp:       time.Now(),
		Cycles:          cycles,
		KnowledgeCount:  e.deps.Knowledge.Count(),
		ActiveGoals:     active,
		ActiveIncidents: incidents,
		AnomaliesSeen:   anomalies,
	}
}

func (e *Engine) generateInsights(ctx context.Context, window []Snapshot) []string {
	if e.deps.Completion != nil && e.deps.Completion.Enabled() {
		items := make([]llm.ContextItem, 0, len(window))
		for _, s := range window {
			items = append(items, llm.ContextItem{
				Label: "Snapshot",
				Content: fmt.Sprintf("%s: cycles=%d knowledge=%d goals=%d incidents=%d anomalies=%d",
					s.Timestamp.Format(time.RFC3339), s.Cycles, s.KnowledgeCount,
					s.ActiveGoals, s.ActiveIncidents, s.AnomaliesSeen),
			})
		}
		insights, err := e.deps.Completion.Insights(ctx, items)
		if err == nil && len(insights) > 0 {
			return insights
		}
		if err != nil {
			logging.Debug("model insights failed, using heuristics: %v", err)
		}
	}
	return heuristicInsights(window)
}

// heuristicInsights compares the oldest and newest snapshot in the
// window and describes the trends.
func heuristicInsights(window []Snapshot) []string {
	if len(window) < 2 {
		return nil
	}
	first, last := window[0], window[len(window)-1]
	span := last.Timestamp.Sub(first.Timestamp).Round(time.Second)

	var insights []string
	if d := last.AnomaliesSeen - first.AnomaliesSeen; d > 0 {
		insights = append(insights,
			fmt.Sprintf("Detected %d anomalies over the last %s of operation", d, span))
	}
	if d := last.KnowledgeCount - first.KnowledgeCount; d > 0 {
		insights = append(insights,
			fmt.Sprintf("Knowledge base grew by %d items over the last %s", d, span))
	}
	if last.ActiveIncidents > first.ActiveIncidents {
		insights = append(insights,
			fmt.Sprintf("Open incidents rose from %d to %d, attention may be needed",
				first.ActiveIncidents, last.ActiveIncidents))
	} else if last.ActiveIncidents < first.ActiveIncidents {
		insights = append(insights,
			fmt.Sprintf("Open incidents fell from %d to %d", first.ActiveIncidents, last.ActiveIncidents))
	}
	if last.Cycles == first.Cycles {
		insights = append(insights,
			fmt.Sprintf("No new analysis processed in the last %s, cameras may be idle", span))
	}
	return insights
}

// cleanup runs on the scheduler's maintenance tick.
func (e *Engine) cleanup() {
	now := time.Now()
	if n := e.deps.Knowledge.Cleanup(now.Add(-e.cfg.KnowledgeRetention)); n > 0 {
		logging.Debug("expired %d knowledge items", n)
	}
	if n := e.deps.Goals.Cleanup(now.Add(-e.cfg.GoalRetention)); n > 0 {
		logging.Debug("expired %d finished goals", n)
	}
	if n := e.deps.Executor.Cleanup(now.Add(-e.cfg.ActionRetention)); n > 0 {
		logging.Debug("expired %d finished actions", n)
	}
	if e.deps.Strategy != nil {
		e.deps.Strategy.Cleanup(context.Background())
	}
}
