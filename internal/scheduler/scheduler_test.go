package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sightline/sightline/internal/core"
)

func TestSubmit_RequiresKind(t *testing.T) {
	s := New(DefaultConfig())

	if err := s.Submit(&Task{}); err == nil {
		t.Error("task without kind should be rejected")
	}
	if err := s.Submit(nil); err == nil {
		t.Error("nil task should be rejected")
	}
}

func TestSubmit_AssignsIDAndTimestamp(t *testing.T) {
	s := New(DefaultConfig())

	task := &Task{Kind: TaskReflect}
	if err := s.Submit(task); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if task.ID == "" {
		t.Error("submit should assign an id")
	}
	if task.CreatedAt.IsZero() {
		t.Error("submit should assign a creation time")
	}
}

func TestPriorityOrdering(t *testing.T) {
	s := New(DefaultConfig())

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	s.Register(TaskProcessAnalysis, func(ctx context.Context, task *Task) error {
		mu.Lock()
		order = append(order, task.Priority)
		if len(order) == 4 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	// Enqueue before starting so the worker sees all four at once.
	for _, p := range []int{3, 10, 1, 7} {
		if err := s.Submit(&Task{Kind: TaskProcessAnalysis, Priority: p}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{10, 7, 3, 1}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order = %v, want %v", order, want)
		}
	}
}

func TestEqualPriorityFIFO(t *testing.T) {
	s := New(DefaultConfig())

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	s.Register(TaskUpdateKnowledge, func(ctx context.Context, task *Task) error {
		mu.Lock()
		order = append(order, task.ID)
		if len(order) == 3 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		if err := s.Submit(&Task{ID: id, Kind: TaskUpdateKnowledge, Priority: 5}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := range ids {
		if order[i] != ids[i] {
			t.Fatalf("execution order = %v, want %v", order, ids)
		}
	}
}

func TestStop_RefusesNewTasks(t *testing.T) {
	s := New(DefaultConfig())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()

	err := s.Submit(&Task{Kind: TaskReflect})
	if !errors.Is(err, core.ErrSchedulerStopped) {
		t.Errorf("submit after stop error = %v, want ErrSchedulerStopped", err)
	}
}

func TestStop_DrainsQueue(t *testing.T) {
	s := New(DefaultConfig())

	var mu sync.Mutex
	executed := 0
	s.Register(TaskEvaluateGoals, func(ctx context.Context, task *Task) error {
		mu.Lock()
		executed++
		mu.Unlock()
		return nil
	})

	for i := 0; i < 5; i++ {
		if err := s.Submit(&Task{Kind: TaskEvaluateGoals}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if executed != 5 {
		t.Errorf("executed %d tasks before stop returned, want 5", executed)
	}
}

func TestStop_DrainedTasksKeepLiveContext(t *testing.T) {
	s := New(DefaultConfig())

	var mu sync.Mutex
	var ctxErrs []error
	s.Register(TaskReflect, func(ctx context.Context, task *Task) error {
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		ctxErrs = append(ctxErrs, ctx.Err())
		mu.Unlock()
		return nil
	})

	for i := 0; i < 5; i++ {
		if err := s.Submit(&Task{Kind: TaskReflect}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Stop blocks until the queue is drained. Tasks still in the queue
	// must run against a live context, not one Stop already cancelled.
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(ctxErrs) != 5 {
		t.Fatalf("executed %d tasks, want 5", len(ctxErrs))
	}
	for i, err := range ctxErrs {
		if err != nil {
			t.Errorf("task %d ran with cancelled context: %v", i, err)
		}
	}
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	s := New(DefaultConfig())

	done := make(chan struct{})
	s.Register(TaskExecuteAction, func(ctx context.Context, task *Task) error {
		panic("handler bug")
	})
	s.Register(TaskReflect, func(ctx context.Context, task *Task) error {
		close(done)
		return nil
	})

	if err := s.Submit(&Task{Kind: TaskExecuteAction, Priority: 10}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.Submit(&Task{Kind: TaskReflect, Priority: 1}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive handler panic")
	}

	stats := s.GetStats()
	if stats.Failed == 0 {
		t.Error("panic should count as a failure")
	}
}

func TestUnhandledKindIsDropped(t *testing.T) {
	s := New(DefaultConfig())

	done := make(chan struct{})
	s.Register(TaskReflect, func(ctx context.Context, task *Task) error {
		close(done)
		return nil
	})

	if err := s.Submit(&Task{Kind: TaskSelectActions, Priority: 10}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.Submit(&Task{Kind: TaskReflect, Priority: 1}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker stuck after unhandled task kind")
	}
}

func TestCleanupCallback(t *testing.T) {
	s := New(Config{CleanupInterval: 20 * time.Millisecond})

	fired := make(chan struct{}, 1)
	s.OnCleanup(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup callback never fired")
	}
}

func TestGetStats(t *testing.T) {
	s := New(DefaultConfig())

	s.Register(TaskReflect, func(ctx context.Context, task *Task) error { return nil })
	for i := 0; i < 3; i++ {
		if err := s.Submit(&Task{Kind: TaskReflect}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	if got := s.QueueDepth(); got != 3 {
		t.Errorf("QueueDepth = %d, want 3", got)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()

	stats := s.GetStats()
	if stats.Submitted != 3 || stats.Executed != 3 {
		t.Errorf("stats = %+v, want 3 submitted and 3 executed", stats)
	}
	if stats.QueueSize != 0 {
		t.Errorf("queue size after drain = %d, want 0", stats.QueueSize)
	}
}
