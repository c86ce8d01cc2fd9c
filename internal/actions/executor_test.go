package actions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sightline/sightline/internal/core"
)

func TestSubmit_Validation(t *testing.T) {
	e := NewExecutor(DefaultConfig())

	if _, err := e.Submit(Action{}); !errors.Is(err, core.ErrMissingRequired) {
		t.Errorf("submit without kind error = %v, want ErrMissingRequired", err)
	}

	a, err := e.Submit(Action{Kind: core.ActionLogInformation, Description: "x"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if a.ID == "" || a.Status != core.ActionPending {
		t.Errorf("submitted action = %+v, want pending with id", a)
	}
}

func TestSubmit_KeepsPlannerEstimates(t *testing.T) {
	e := NewExecutor(DefaultConfig())

	a, err := e.Submit(Action{
		Kind:            core.ActionLogInformation,
		Description:     "note",
		Priority:        8,
		ExpectedUtility: 0.85,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if a.Priority != 8 {
		t.Errorf("priority = %d, want 8", a.Priority)
	}
	if a.ExpectedUtility != 0.85 {
		t.Errorf("expected utility = %v, want 0.85", a.ExpectedUtility)
	}
}

func TestExecute_Lifecycle(t *testing.T) {
	e := NewExecutor(DefaultConfig())

	var sawStatus core.ActionStatus
	e.Register(core.ActionGenerateAlert, func(ctx context.Context, action Action) (*Result, error) {
		sawStatus = action.Status
		return &Result{Message: "done"}, nil
	})

	a, err := e.Submit(Action{Kind: core.ActionGenerateAlert, Description: "alert"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	result, err := e.Execute(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success || result.Message != "done" {
		t.Errorf("result = %+v", result)
	}
	if sawStatus != core.ActionInProgress {
		t.Errorf("handler saw status %s, want in_progress", sawStatus)
	}

	got, _ := e.Get(a.ID)
	if got.Status != core.ActionCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.ExecutedAt == nil {
		t.Error("executed_at not set")
	}
}

func TestExecute_HandlerError(t *testing.T) {
	e := NewExecutor(DefaultConfig())
	e.Register(core.ActionVerifyAnomaly, func(ctx context.Context, action Action) (*Result, error) {
		return nil, fmt.Errorf("camera offline")
	})

	a, _ := e.Submit(Action{Kind: core.ActionVerifyAnomaly})
	result, err := e.Execute(context.Background(), a.ID)
	if !errors.Is(err, core.ErrActionFailed) {
		t.Errorf("error = %v, want ErrActionFailed", err)
	}
	if result == nil || result.Success || result.Error == "" {
		t.Errorf("result = %+v, want failure with error text", result)
	}

	got, _ := e.Get(a.ID)
	if got.Status != core.ActionFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestExecute_NoHandler(t *testing.T) {
	e := NewExecutor(DefaultConfig())

	a, _ := e.Submit(Action{Kind: core.ActionFocusCamera})
	if _, err := e.Execute(context.Background(), a.ID); !errors.Is(err, core.ErrNoHandler) {
		t.Errorf("error = %v, want ErrNoHandler", err)
	}

	got, _ := e.Get(a.ID)
	if got.Status != core.ActionFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestExecute_MissingAndTerminal(t *testing.T) {
	e := NewExecutor(DefaultConfig())
	e.Register(core.ActionLogInformation, func(ctx context.Context, action Action) (*Result, error) {
		return &Result{}, nil
	})

	if _, err := e.Execute(context.Background(), "missing"); !errors.Is(err, core.ErrActionNotFound) {
		t.Errorf("error = %v, want ErrActionNotFound", err)
	}

	a, _ := e.Submit(Action{Kind: core.ActionLogInformation})
	if _, err := e.Execute(context.Background(), a.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// A completed action cannot run again.
	if _, err := e.Execute(context.Background(), a.ID); err == nil {
		t.Error("re-executing a completed action should fail")
	}
}

func TestExecute_Timeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExecutionTimeout = 20 * time.Millisecond
	e := NewExecutor(cfg)

	e.Register(core.ActionGatherContext, func(ctx context.Context, action Action) (*Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return &Result{}, nil
		}
	})

	a, _ := e.Submit(Action{Kind: core.ActionGatherContext})
	if _, err := e.Execute(context.Background(), a.ID); !errors.Is(err, core.ErrActionFailed) {
		t.Errorf("error = %v, want ErrActionFailed from timeout", err)
	}
}

func TestCancel(t *testing.T) {
	e := NewExecutor(DefaultConfig())
	e.Register(core.ActionLogInformation, func(ctx context.Context, action Action) (*Result, error) {
		return &Result{}, nil
	})

	a, _ := e.Submit(Action{Kind: core.ActionLogInformation})
	if err := e.Cancel(a.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, _ := e.Get(a.ID)
	if got.Status != core.ActionCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if err := e.Cancel(a.ID); err == nil {
		t.Error("cancelling twice should fail")
	}
	if _, err := e.Execute(context.Background(), a.ID); err == nil {
		t.Error("executing a cancelled action should fail")
	}
}

func TestGoalProgress(t *testing.T) {
	e := NewExecutor(DefaultConfig())
	e.Register(core.ActionLogInformation, func(ctx context.Context, action Action) (*Result, error) {
		return &Result{}, nil
	})

	goalID := core.GoalID("goal-1")
	var ids []core.ActionID
	for i := 0; i < 4; i++ {
		a, _ := e.Submit(Action{Kind: core.ActionLogInformation, GoalID: goalID})
		ids = append(ids, a.ID)
	}
	// Unrelated action must not count.
	e.Submit(Action{Kind: core.ActionLogInformation, GoalID: "other"})

	for _, id := range ids[:3] {
		if _, err := e.Execute(context.Background(), id); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}

	completed, total := e.GoalProgress(goalID)
	if completed != 3 || total != 4 {
		t.Errorf("GoalProgress = (%d, %d), want (3, 4)", completed, total)
	}
}

func TestCleanup(t *testing.T) {
	e := NewExecutor(DefaultConfig())
	e.Register(core.ActionLogInformation, func(ctx context.Context, action Action) (*Result, error) {
		return &Result{}, nil
	})

	old, _ := e.Submit(Action{Kind: core.ActionLogInformation})
	if _, err := e.Execute(context.Background(), old.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// Backdate the execution time past the retention cutoff.
	e.mu.Lock()
	past := time.Now().Add(-2 * time.Hour)
	e.actions[old.ID].ExecutedAt = &past
	e.mu.Unlock()

	fresh, _ := e.Submit(Action{Kind: core.ActionLogInformation})
	if _, err := e.Execute(context.Background(), fresh.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	pending, _ := e.Submit(Action{Kind: core.ActionLogInformation})

	removed := e.Cleanup(time.Now().Add(-time.Hour))
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := e.Get(old.ID); ok {
		t.Error("stale completed action should be removed")
	}
	if _, ok := e.Get(fresh.ID); !ok {
		t.Error("recent completed action should survive")
	}
	if _, ok := e.Get(pending.ID); !ok {
		t.Error("pending action should survive")
	}
}

func TestRecentAndPending(t *testing.T) {
	e := NewExecutor(DefaultConfig())
	e.Register(core.ActionLogInformation, func(ctx context.Context, action Action) (*Result, error) {
		return &Result{}, nil
	})

	first, _ := e.Submit(Action{Kind: core.ActionLogInformation, Description: "first"})
	e.Execute(context.Background(), first.ID)
	e.Submit(Action{Kind: core.ActionLogInformation, Description: "second"})

	recent := e.Recent(5)
	if len(recent) != 2 || recent[0].Description != "second" {
		t.Errorf("Recent = %d items, first %q; want newest first", len(recent), recent[0].Description)
	}

	pending := e.Pending()
	if len(pending) != 1 || pending[0].Description != "second" {
		t.Errorf("Pending = %+v, want only the second action", pending)
	}
}
