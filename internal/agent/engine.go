// Package agent runs the cognitive cycle: perceive analysis results,
// update knowledge and goals, select and execute actions, and reflect
// on recent behavior.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sightline/sightline/internal/actions"
	"github.com/sightline/sightline/internal/anomaly"
	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/goals"
	"github.com/sightline/sightline/internal/knowledge"
	"github.com/sightline/sightline/internal/llm"
	"github.com/sightline/sightline/internal/logging"
	"github.com/sightline/sightline/internal/scheduler"
	"github.com/sightline/sightline/internal/storage"
	"github.com/sightline/sightline/internal/strategy"
)

// Config configures the engine
type Config struct {
	ReflectionInterval time.Duration // How often the engine reflects
	CleanupInterval    time.Duration // How often retention runs
	KnowledgeRetention time.Duration // Knowledge items older than this are dropped
	GoalRetention      time.Duration // Terminal goals older than this are dropped
	ActionRetention    time.Duration // Finished actions older than this are dropped
	SnapshotCap        int           // Reflection snapshots kept
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		ReflectionInterval: 5 * time.Minute,
		CleanupInterval:    60 * time.Second,
		KnowledgeRetention: 24 * time.Hour,
		GoalRetention:      24 * time.Hour,
		ActionRetention:    time.Hour,
		SnapshotCap:        100,
	}
}

// Deps are the subsystems the engine drives.
type Deps struct {
	Scheduler  *scheduler.Scheduler
	Knowledge  *knowledge.Store
	Goals      *goals.Tracker
	Executor   *actions.Executor
	Strategy   *strategy.Manager
	Detector   *anomaly.Detector
	Completion *llm.Service
	Models     *storage.ModelStore
}

// Snapshot is one reflection-time view of engine state.
type Snapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	Cycles          int64     `json:"cycles"`
	KnowledgeCount  int       `json:"knowledge_count"`
	ActiveGoals     int       `json:"active_goals"`
	ActiveIncidents int       `json:"active_incidents"`
	AnomaliesSeen   int64     `json:"anomalies_seen"`
}

// Engine is the cognitive core.
type Engine struct {
	cfg  Config
	deps Deps

	mu             sync.Mutex
	running        bool
	cycles         int64
	anomaliesSeen  int64
	snapshots      []Snapshot
	insights       []string
	lastReflection time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New wires the engine into its subsystems: scheduler handlers, the
// cleanup hook, and the two standing goals.
func New(cfg Config, deps Deps) *Engine {
	def := DefaultConfig()
	if cfg.ReflectionInterval <= 0 {
		cfg.ReflectionInterval = def.ReflectionInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.KnowledgeRetention <= 0 {
		cfg.KnowledgeRetention = def.KnowledgeRetention
	}
	if cfg.GoalRetention <= 0 {
		cfg.GoalRetention = def.GoalRetention
	}
	if cfg.ActionRetention <= 0 {
		cfg.ActionRetention = def.ActionRetention
	}
	if cfg.SnapshotCap <= 0 {
		cfg.SnapshotCap = def.SnapshotCap
	}

	e := &Engine{
		cfg:    cfg,
		deps:   deps,
		stopCh: make(chan struct{}),
	}

	s := deps.Scheduler
	s.Register(scheduler.TaskProcessAnalysis, e.processAnalysis)
	s.Register(scheduler.TaskUpdateKnowledge, e.updateKnowledge)
	s.Register(scheduler.TaskEvaluateGoals, e.evaluateGoals)
	s.Register(scheduler.TaskSelectActions, e.selectActions)
	s.Register(scheduler.TaskExecuteAction, e.executeAction)
	s.Register(scheduler.TaskReflect, e.reflect)
	s.OnCleanup(e.cleanup)

	deps.Goals.Add(goals.Goal{
		Kind:        core.GoalMonitor,
		Description: "Monitor security cameras for anomalies",
		Priority:    core.PriorityMedium,
	})
	deps.Goals.Add(goals.Goal{
		Kind:        core.GoalOptimize,
		Description: "Optimize system performance and reduce false alarms",
		Priority:    core.PriorityLow,
	})

	return e
}

// Start launches the scheduler and the reflection ticker.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.mu.Unlock()

	if err := e.deps.Scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	e.wg.Add(1)
	go e.reflectionLoop()

	logging.Info("cognitive engine started")
	return nil
}

// Stop drains the scheduler and persists model state.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()
	e.deps.Scheduler.Stop()

	if e.deps.Models != nil && e.deps.Detector != nil {
		if err := e.deps.Detector.Save(e.deps.Models); err != nil {
			logging.Warn("model save on shutdown failed: %v", err)
		}
	}
	logging.Info("cognitive engine stopped")
}

// HandleAnalysis is the perception entry point. Anomalous results jump
// the queue.
func (e *Engine) HandleAnalysis(result core.AnalysisResult) error {
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}

	priority := 5
	if result.IsAnomaly {
		priority = 10
	}
	return e.deps.Scheduler.Submit(&scheduler.Task{
		Kind:     scheduler.TaskProcessAnalysis,
		Priority: priority,
		Payload:  result,
	})
}

// ====== Task Handlers ======

// analysisFacts carries perceived facts between cycle stages.
type analysisFacts struct {
	facts     []knowledge.Item
	anomalous bool
}

// threatState carries the threat assessment into goal evaluation.
type threatState struct {
	maxThreat float64
}

func (e *Engine) processAnalysis(ctx context.Context, task *scheduler.Task) error {
	result, ok := task.Payload.(core.AnalysisResult)
	if !ok {
		return fmt.Errorf("%w: process_analysis payload", core.ErrInvalidInput)
	}

	e.mu.Lock()
	e.cycles++
	e.mu.Unlock()

	if e.deps.Detector != nil {
		e.deps.Detector.Observe(result)
		result = e.deps.Detector.Detect(result)
	}
	if result.IsAnomaly {
		e.mu.Lock()
		e.anomaliesSeen++
		e.mu.Unlock()
	}

	if e.deps.Strategy != nil {
		e.deps.Strategy.ProcessAnalysis(ctx, result)
	}

	facts := perceive(result)
	if len(facts) == 0 && !result.IsAnomaly {
		return nil
	}

	priority := 3
	if result.IsAnomaly {
		priority = 7
	}
	return e.deps.Scheduler.Submit(&scheduler.Task{
		Kind:     scheduler.TaskUpdateKnowledge,
		Priority: priority,
		Payload:  analysisFacts{facts: facts, anomalous: result.IsAnomaly},
	})
}

func (e *Engine) updateKnowledge(ctx context.Context, task *scheduler.Task) error {
	payload, ok := task.Payload.(analysisFacts)
	if !ok {
		return fmt.Errorf("%w: update_knowledge payload", core.ErrInvalidInput)
	}

	var maxThreat float64
	for _, fact := range payload.facts {
		stored, err := e.deps.Knowledge.Add(fact)
		if err != nil {
			logging.Warn("discarding fact: %v", err)
			continue
		}

		score := threatScore(*stored)
		if score > maxThreat {
			maxThreat = score
		}
		if score > 0.5 {
			if _, err := e.deps.Knowledge.Add(knowledge.Item{
				Kind:       core.KnowledgeInference,
				Content:    fmt.Sprintf("Potential security threat: %s", stored.Content),
				Confidence: score,
				Source:     "threat_assessment",
			}); err != nil {
				logging.Warn("discarding threat inference: %v", err)
			}
		}
	}

	if payload.anomalous {
		e.assessSituation(ctx)
	}

	priority := 5
	if payload.anomalous {
		priority = 8
	}
	if maxThreat > 0.7 {
		priority = 9
	}
	return e.deps.Scheduler.Submit(&scheduler.Task{
		Kind:     scheduler.TaskEvaluateGoals,
		Priority: priority,
		Payload:  threatState{maxThreat: maxThreat},
	})
}

// assessSituation distills recent knowledge into a single situation
// inference, via the completion service when available and a token scan
// otherwise.
func (e *Engine) assessSituation(ctx context.Context) {
	recent := e.deps.Knowledge.Recent(20)

	var content string
	var confidence float64
	if e.deps.Completion != nil && e.deps.Completion.Enabled() {
		items := make([]llm.ContextItem, 0, len(recent))
		for _, k := range recent {
			items = append(items, llm.ContextItem{Label: "Knowledge", Content: k.Content})
		}
		analysis, err := e.deps.Completion.Analyze(ctx, llm.AnalysisRequest{
			Kind:    llm.KindSituationAssessment,
			Context: items,
		})
		if err == nil && analysis.Reasoning != "" {
			content, confidence = analysis.Reasoning, analysis.Confidence
		} else if err != nil {
			logging.Debug("model situation assessment failed, using heuristics: %v", err)
		}
	}
	if content == "" {
		window := make([]knowledge.Item, 0, len(recent))
		for _, k := range recent {
			window = append(window, *k)
		}
		content, confidence = heuristicAssessment(window)
	}

	if _, err := e.deps.Knowledge.Add(knowledge.Item{
		Kind:       core.KnowledgeInference,
		Content:    content,
		Confidence: confidence,
		Source:     "situation_assessment",
	}); err != nil {
		logging.Warn("discarding situation assessment: %v", err)
	}
}

// heuristicAssessment scans the window for anomaly and threat content.
func heuristicAssessment(recent []knowledge.Item) (string, float64) {
	var count int
	var maxConf float64
	for _, item := range recent {
		lower := strings.ToLower(item.Content)
		if strings.Contains(lower, "anomaly") || strings.Contains(lower, "threat") {
			count++
			if item.Confidence > maxConf {
				maxConf = item.Confidence
			}
		}
	}
	if count == 0 {
		return "Situation appears normal, no concerning activity in recent observations", 0.9
	}
	return fmt.Sprintf("Elevated situation: %d of the last %d observations reference anomalies or threats",
		count, len(recent)), maxConf * 0.9
}

func (e *Engine) evaluateGoals(ctx context.Context, task *scheduler.Task) error {
	state, ok := task.Payload.(threatState)
	if !ok {
		return fmt.Errorf("%w: evaluate_goals payload", core.ErrInvalidInput)
	}

	// Advance verification and response goals by the share of their
	// actions that have completed.
	for _, goal := range e.deps.Goals.Active() {
		if goal.Kind != core.GoalVerify && goal.Kind != core.GoalRespond {
			continue
		}
		completed, total := e.deps.Executor.GoalProgress(goal.ID)
		if total > 0 {
			e.deps.Goals.UpdateProgress(goal.ID, float64(completed)/float64(total))
		}
	}

	if state.maxThreat > 0.5 {
		const verifyDesc = "Investigate potential security concern"
		if _, exists := e.deps.Goals.ActiveWithDescription(verifyDesc); !exists {
			e.deps.Goals.Add(goals.Goal{
				Kind:        core.GoalVerify,
				Description: verifyDesc,
				Priority:    core.PriorityHigh,
			})
		}
	}
	if state.maxThreat > 0.7 {
		const respondDesc = "Respond to identified security threat"
		if _, exists := e.deps.Goals.ActiveWithDescription(respondDesc); !exists {
			e.deps.Goals.Add(goals.Goal{
				Kind:        core.GoalRespond,
				Description: respondDesc,
				Priority:    core.PriorityCritical,
			})
		}
	}

	priority := 5
	if state.maxThreat > 0.5 {
		priority = 6
	}
	return e.deps.Scheduler.Submit(&scheduler.Task{
		Kind:     scheduler.TaskSelectActions,
		Priority: priority,
	})
}

func (e *Engine) selectActions(ctx context.Context, task *scheduler.Task) error {
	goal := e.deps.Goals.HighestPriorityActive()
	if goal == nil {
		return nil
	}
	e.deps.Goals.Start(goal.ID)

	planned := e.planActions(ctx, goal)
	for _, p := range planned {
		action, err := e.deps.Executor.Submit(actions.Action{
			Kind:            p.kind,
			Description:     p.description,
			GoalID:          goal.ID,
			Params:          p.params,
			Priority:        p.priority,
			ExpectedUtility: p.utility,
		})
		if err != nil {
			logging.Warn("action submit failed: %v", err)
			continue
		}
		if err := e.deps.Scheduler.Submit(&scheduler.Task{
			Kind:     scheduler.TaskExecuteAction,
			Priority: action.Priority,
			Payload:  action.ID,
		}); err != nil {
			return err
		}
	}
	return nil
}

type plannedAction struct {
	kind        core.ActionKind
	description string
	priority    int
	utility     float64
	params      core.Params
}

// planActions asks the completion service for an action plan and falls
// back to per-goal heuristics.
func (e *Engine) planActions(ctx context.Context, goal *goals.Goal) []plannedAction {
	if e.deps.Completion != nil && e.deps.Completion.Enabled() {
		if planned, err := e.modelPlan(ctx, goal); err == nil && len(planned) > 0 {
			return planned
		} else if err != nil {
			logging.Debug("model action planning failed, using heuristics: %v", err)
		}
	}
	return fallbackPlan(goal)
}

func (e *Engine) modelPlan(ctx context.Context, goal *goals.Goal) ([]plannedAction, error) {
	items := []llm.ContextItem{
		{Label: "Goal", Content: fmt.Sprintf("%s (%s priority): %s", goal.Kind, goal.Priority, goal.Description)},
	}
	for _, k := range e.deps.Knowledge.Recent(10) {
		items = append(items, llm.ContextItem{Label: "Knowledge", Content: k.Content})
	}

	analysis, err := e.deps.Completion.Analyze(ctx, llm.AnalysisRequest{
		Kind:    llm.KindResponsePlanning,
		Context: items,
	})
	if err != nil {
		return nil, err
	}

	planned := make([]plannedAction, 0, len(analysis.Actions))
	for _, sa := range analysis.Actions {
		planned = append(planned, plannedAction{
			kind:        actionKindForSuggestion(sa.Kind),
			description: sa.Description,
			priority:    int(sa.Confidence * 10),
			utility:     sa.Confidence,
			params:      core.Params(sa.Params),
		})
	}
	return planned, nil
}

// actionKindForSuggestion maps model vocabulary onto executable kinds.
func actionKindForSuggestion(label string) core.ActionKind {
	switch label {
	case "monitor":
		return core.ActionFocusCamera
	case "alert":
		return core.ActionGenerateAlert
	case "track":
		return core.ActionTrackSubject
	case "analyze-further":
		return core.ActionGatherContext
	case "cross-reference":
		return core.ActionCorrelateEvents
	case "predict":
		return core.ActionUpdateModel
	case "recommend":
		return core.ActionRequestAssistance
	default:
		return core.ActionLogInformation
	}
}

// fallbackPlan is the deterministic action plan per goal kind.
func fallbackPlan(goal *goals.Goal) []plannedAction {
	switch goal.Kind {
	case core.GoalMonitor:
		return []plannedAction{
			{kind: core.ActionFocusCamera, description: "Focus on highest-interest camera",
				priority: 7, utility: 0.7, params: core.Params{"duration": 300}},
		}
	case core.GoalVerify:
		return []plannedAction{
			{kind: core.ActionVerifyAnomaly, description: "Verify the reported anomaly",
				priority: 9, utility: 0.9},
			{kind: core.ActionGatherContext, description: "Gather context for the anomaly",
				priority: 8, utility: 0.8},
		}
	case core.GoalRespond:
		return []plannedAction{
			{kind: core.ActionGenerateAlert, description: "Alert operators to the security threat",
				priority: 10, utility: 0.95, params: core.Params{"priority": "high"}},
			{kind: core.ActionTrackSubject, description: "Track the subject of the threat",
				priority: 9, utility: 0.9},
		}
	default:
		return []plannedAction{
			{kind: core.ActionLogInformation,
				description: fmt.Sprintf("Record state for goal: %s", goal.Description),
				priority:    5, utility: 0.5},
		}
	}
}

func (e *Engine) executeAction(ctx context.Context, task *scheduler.Task) error {
	id, ok := task.Payload.(core.ActionID)
	if !ok {
		return fmt.Errorf("%w: execute_action payload", core.ErrInvalidInput)
	}

	action, found := e.deps.Executor.Get(id)
	if !found {
		return core.ErrActionNotFound
	}

	_, execErr := e.deps.Executor.Execute(ctx, id)

	if action.GoalID != "" {
		completed, total := e.deps.Executor.GoalProgress(action.GoalID)
		if total > 0 {
			e.deps.Goals.UpdateProgress(action.GoalID, float64(completed)/float64(total))
		}
	}
	return execErr
}
