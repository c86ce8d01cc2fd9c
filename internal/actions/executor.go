// Package actions executes the interventions the engine selects:
// camera control, alerting, verification, tracking, and reporting.
package actions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/logging"
)

// Action is one intervention with its lifecycle state. Priority orders
// execution; ExpectedUtility is the planner's estimate of how much the
// action helps its goal.
type Action struct {
	ID              core.ActionID     `json:"id"`
	Kind            core.ActionKind   `json:"kind"`
	Description     string            `json:"description"`
	GoalID          core.GoalID       `json:"goal_id,omitempty"`
	Params          core.Params       `json:"params,omitempty"`
	Priority        int               `json:"priority"`
	ExpectedUtility float64           `json:"expected_utility"`
	Status          core.ActionStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	ExecutedAt      *time.Time        `json:"executed_at,omitempty"`
	Result          *Result           `json:"result,omitempty"`
}

// Result is the outcome of one execution.
type Result struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	Data     core.Params   `json:"data,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HandlerFunc executes one action kind.
type HandlerFunc func(ctx context.Context, action Action) (*Result, error)

// Config configures the executor
type Config struct {
	ExecutionTimeout time.Duration // Per-action timeout
	MaxQueueSize     int           // Retained action records
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		ExecutionTimeout: 30 * time.Second,
		MaxQueueSize:     500,
	}
}

// Executor dispatches actions to registered handlers and keeps their
// records for goal progress and inspection.
type Executor struct {
	cfg      Config
	mu       sync.RWMutex
	handlers map[core.ActionKind]HandlerFunc
	actions  map[core.ActionID]*Action
	order    []core.ActionID
}

// NewExecutor creates an executor with no handlers registered.
func NewExecutor(cfg Config) *Executor {
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = 30 * time.Second
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 500
	}
	return &Executor{
		cfg:      cfg,
		handlers: make(map[core.ActionKind]HandlerFunc),
		actions:  make(map[core.ActionID]*Action),
	}
}

// Register binds a handler to an action kind.
func (e *Executor) Register(kind core.ActionKind, fn HandlerFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = fn
}

// Submit records a pending action and returns its stored form.
func (e *Executor) Submit(action Action) (*Action, error) {
	if action.Kind == "" {
		return nil, fmt.Errorf("%w: action kind", core.ErrMissingRequired)
	}

	if action.ID == "" {
		action.ID = core.ActionID(uuid.NewString())
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}
	action.Status = core.ActionPending

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.order) >= e.cfg.MaxQueueSize {
		oldest := e.order[0]
		delete(e.actions, oldest)
		e.order = e.order[1:]
	}

	cp := action
	e.actions[action.ID] = &cp
	e.order = append(e.order, action.ID)

	out := cp
	return &out, nil
}

// Execute runs a submitted action by ID. The action moves to
// in_progress, the handler runs under the execution timeout, and the
// action lands in exactly one terminal state.
func (e *Executor) Execute(ctx context.Context, id core.ActionID) (*Result, error) {
	e.mu.Lock()
	action, ok := e.actions[id]
	if !ok {
		e.mu.Unlock()
		return nil, core.ErrActionNotFound
	}
	if action.Status != core.ActionPending {
		status := action.Status
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: action %s is %s", core.ErrInvalidInput, id, status)
	}
	handler := e.handlers[action.Kind]
	if handler == nil {
		action.Status = core.ActionFailed
		action.Result = &Result{Error: core.ErrNoHandler.Error()}
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", core.ErrNoHandler, action.Kind)
	}
	action.Status = core.ActionInProgress
	snapshot := *action
	e.mu.Unlock()

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.ExecutionTimeout)
	defer cancel()

	start := time.Now()
	result, err := handler(execCtx, snapshot)
	if result == nil {
		result = &Result{}
	}
	result.Duration = time.Since(start)

	now := time.Now()
	e.mu.Lock()
	action.ExecutedAt = &now
	if err != nil {
		action.Status = core.ActionFailed
		result.Success = false
		result.Error = err.Error()
	} else {
		action.Status = core.ActionCompleted
		result.Success = true
	}
	action.Result = result
	e.mu.Unlock()

	if err != nil {
		logging.Warn("action %s (%s) failed: %v", id, snapshot.Kind, err)
		return result, fmt.Errorf("%w: %v", core.ErrActionFailed, err)
	}
	logging.Debug("action %s (%s) completed in %s", id, snapshot.Kind, result.Duration)
	return result, nil
}

// Cancel marks a pending action cancelled.
func (e *Executor) Cancel(id core.ActionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	action, ok := e.actions[id]
	if !ok {
		return core.ErrActionNotFound
	}
	if action.Status != core.ActionPending {
		return fmt.Errorf("%w: action %s is %s", core.ErrInvalidInput, id, action.Status)
	}
	action.Status = core.ActionCancelled
	return nil
}

// Get returns one action by ID.
func (e *Executor) Get(id core.ActionID) (*Action, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	action, ok := e.actions[id]
	if !ok {
		return nil, false
	}
	cp := *action
	return &cp, true
}

// Pending returns pending actions in submission order.
func (e *Executor) Pending() []*Action {
	return e.byStatus(core.ActionPending)
}

func (e *Executor) byStatus(status core.ActionStatus) []*Action {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*Action
	for _, id := range e.order {
		if a, ok := e.actions[id]; ok && a.Status == status {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

// Recent returns the newest action records, most recent first.
func (e *Executor) Recent(limit int) []*Action {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if limit <= 0 || limit > len(e.order) {
		limit = len(e.order)
	}
	out := make([]*Action, 0, limit)
	for i := len(e.order) - 1; i >= 0 && len(out) < limit; i-- {
		if a, ok := e.actions[e.order[i]]; ok {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

// GoalProgress reports completed vs. total actions attached to a goal.
func (e *Executor) GoalProgress(goalID core.GoalID) (completed, total int) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, a := range e.actions {
		if a.GoalID != goalID {
			continue
		}
		total++
		if a.Status == core.ActionCompleted {
			completed++
		}
	}
	return completed, total
}

// Cleanup removes terminal actions executed before the cutoff and
// returns how many were removed.
func (e *Executor) Cleanup(olderThan time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	kept := e.order[:0]
	for _, id := range e.order {
		a, ok := e.actions[id]
		if !ok {
			continue
		}
		terminal := a.Status == core.ActionCompleted || a.Status == core.ActionFailed || a.Status == core.ActionCancelled
		stale := a.ExecutedAt != nil && a.ExecutedAt.Before(olderThan)
		if a.Status == core.ActionCancelled {
			stale = a.CreatedAt.Before(olderThan)
		}
		if terminal && stale {
			delete(e.actions, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	e.order = kept
	return removed
}
