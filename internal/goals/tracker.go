// Package goals tracks the objectives the engine is currently pursuing
// and their progress toward completion.
package goals

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sightline/sightline/internal/core"
)

// Goal is one objective with a lifecycle and progress measure.
type Goal struct {
	ID          core.GoalID     `json:"id"`
	Kind        core.GoalKind   `json:"kind"`
	Description string          `json:"description"`
	Priority    core.Priority   `json:"priority"`
	Status      core.GoalStatus `json:"status"`
	Progress    float64         `json:"progress"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Metadata    core.Params     `json:"metadata,omitempty"`
}

// IsActive reports whether the goal is still being pursued.
func (g *Goal) IsActive() bool {
	return g.Status == core.GoalPending || g.Status == core.GoalInProgress
}

// IsTerminal reports whether the goal reached a final state.
func (g *Goal) IsTerminal() bool {
	return !g.IsActive()
}

// Tracker is a concurrency-safe goal registry.
type Tracker struct {
	mu    sync.RWMutex
	goals map[core.GoalID]*Goal
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		goals: make(map[core.GoalID]*Goal),
	}
}

// Add registers a goal. Missing fields get defaults: a fresh ID,
// pending status, zero progress.
func (t *Tracker) Add(goal Goal) *Goal {
	if goal.ID == "" {
		goal.ID = core.GoalID(uuid.NewString())
	}
	if goal.Status == "" {
		goal.Status = core.GoalPending
	}
	now := time.Now()
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = now
	}
	goal.UpdatedAt = now
	goal.Progress = clampProgress(goal.Progress, goal.Status)

	t.mu.Lock()
	t.goals[goal.ID] = &goal
	t.mu.Unlock()

	cp := goal
	return &cp
}

// Get returns one goal by ID.
func (t *Tracker) Get(id core.GoalID) (*Goal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	goal, ok := t.goals[id]
	if !ok {
		return nil, false
	}
	cp := *goal
	return &cp, true
}

// Start moves a pending goal to in_progress. Returns false when the
// goal is missing or already terminal.
func (t *Tracker) Start(id core.GoalID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	goal, ok := t.goals[id]
	if !ok || goal.IsTerminal() {
		return false
	}
	goal.Status = core.GoalInProgress
	goal.UpdatedAt = time.Now()
	return true
}

// UpdateProgress sets a goal's progress. Progress is clamped to [0, 1];
// reaching 1 marks the goal achieved. Terminal goals are not updated.
func (t *Tracker) UpdateProgress(id core.GoalID, progress float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	goal, ok := t.goals[id]
	if !ok || goal.IsTerminal() {
		return false
	}

	if progress < 0 {
		progress = 0
	}
	if progress >= 1 {
		t.completeLocked(goal, core.GoalAchieved)
		return true
	}

	goal.Progress = progress
	if goal.Status == core.GoalPending && progress > 0 {
		goal.Status = core.GoalInProgress
	}
	goal.UpdatedAt = time.Now()
	return true
}

// Complete marks a goal achieved with full progress.
func (t *Tracker) Complete(id core.GoalID) bool {
	return t.finish(id, core.GoalAchieved)
}

// Fail marks a goal failed.
func (t *Tracker) Fail(id core.GoalID) bool {
	return t.finish(id, core.GoalFailed)
}

// Abandon marks a goal abandoned.
func (t *Tracker) Abandon(id core.GoalID) bool {
	return t.finish(id, core.GoalAbandoned)
}

func (t *Tracker) finish(id core.GoalID, status core.GoalStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	goal, ok := t.goals[id]
	if !ok || goal.IsTerminal() {
		return false
	}
	t.completeLocked(goal, status)
	return true
}

func (t *Tracker) completeLocked(goal *Goal, status core.GoalStatus) {
	now := time.Now()
	goal.Status = status
	goal.UpdatedAt = now
	goal.CompletedAt = &now
	if status == core.GoalAchieved {
		goal.Progress = 1
	}
}

// Active returns all non-terminal goals ordered by priority, most
// urgent first, with newer goals breaking ties.
func (t *Tracker) Active() []*Goal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var active []*Goal
	for _, goal := range t.goals {
		if goal.IsActive() {
			cp := *goal
			active = append(active, &cp)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority < active[j].Priority
		}
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active
}

// HighestPriorityActive returns the most urgent active goal, or nil.
func (t *Tracker) HighestPriorityActive() *Goal {
	active := t.Active()
	if len(active) == 0 {
		return nil
	}
	return active[0]
}

// ActiveWithDescription finds an active goal by its description, used
// to avoid creating duplicate objectives for the same concern.
func (t *Tracker) ActiveWithDescription(description string) (*Goal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, goal := range t.goals {
		if goal.IsActive() && goal.Description == description {
			cp := *goal
			return &cp, true
		}
	}
	return nil, false
}

// All returns every goal, active and terminal.
func (t *Tracker) All() []*Goal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := make([]*Goal, 0, len(t.goals))
	for _, goal := range t.goals {
		cp := *goal
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all
}

// Count returns active and total goal counts.
func (t *Tracker) Count() (active, total int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, goal := range t.goals {
		if goal.IsActive() {
			active++
		}
	}
	return active, len(t.goals)
}

// Cleanup removes terminal goals whose last update is older than the
// cutoff. Active goals are never removed.
func (t *Tracker) Cleanup(olderThan time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, goal := range t.goals {
		if goal.IsTerminal() && goal.UpdatedAt.Before(olderThan) {
			delete(t.goals, id)
			removed++
		}
	}
	return removed
}

func clampProgress(p float64, status core.GoalStatus) float64 {
	if p < 0 {
		return 0
	}
	if status != core.GoalAchieved && p >= 1 {
		return 0.99
	}
	if p > 1 {
		return 1
	}
	return p
}
