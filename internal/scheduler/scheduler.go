// Package scheduler provides prioritized task scheduling for the
// cognitive engine. Tasks are executed by a single worker in priority
// order so the engine's reasoning steps never race each other.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/logging"
)

// TaskKind identifies the kind of work a task carries.
type TaskKind string

const (
	TaskProcessAnalysis TaskKind = "process_analysis"
	TaskUpdateKnowledge TaskKind = "update_knowledge"
	TaskEvaluateGoals   TaskKind = "evaluate_goals"
	TaskSelectActions   TaskKind = "select_actions"
	TaskExecuteAction   TaskKind = "execute_action"
	TaskReflect         TaskKind = "reflect"
)

// Task is one unit of work. Higher Priority runs first; tasks with
// equal priority run in submission order.
type Task struct {
	ID        string      `json:"id"`
	Kind      TaskKind    `json:"kind"`
	Priority  int         `json:"priority"`
	Payload   any         `json:"-"`
	Params    core.Params `json:"params,omitempty"`
	CreatedAt time.Time   `json:"created_at"`

	seq uint64
}

// TaskHandler executes one task.
type TaskHandler func(ctx context.Context, task *Task) error

// Config configures the scheduler
type Config struct {
	CleanupInterval time.Duration // How often the cleanup callback fires
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		CleanupInterval: 60 * time.Second,
	}
}

// Scheduler owns the priority queue and the worker goroutine.
type Scheduler struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    taskQueue
	handlers map[TaskKind]TaskHandler
	seq      uint64
	started  bool
	stopped  bool

	cleanupInterval time.Duration
	onCleanup       func()

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup

	submitted int64
	executed  int64
	failed    int64
}

// New creates a scheduler. Handlers are registered before Start.
func New(cfg Config) *Scheduler {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 60 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		handlers:        make(map[TaskKind]TaskHandler),
		cleanupInterval: cfg.CleanupInterval,
		ctx:             ctx,
		cancel:          cancel,
		stopCh:          make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Register binds a handler to a task kind. Registering after Start is
// allowed; the worker picks up the handler on the next dispatch.
func (s *Scheduler) Register(kind TaskKind, handler TaskHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = handler
}

// OnCleanup sets the callback invoked on every cleanup tick.
func (s *Scheduler) OnCleanup(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCleanup = fn
}

// Submit enqueues a task without blocking. It fails once the scheduler
// has been stopped.
func (s *Scheduler) Submit(task *Task) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}
	if task.Kind == "" {
		return fmt.Errorf("task kind is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return core.ErrSchedulerStopped
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	s.seq++
	task.seq = s.seq

	heap.Push(&s.queue, task)
	s.submitted++
	s.cond.Signal()
	return nil
}

// Start launches the worker and the cleanup ticker.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	if s.stopped {
		return core.ErrSchedulerStopped
	}
	s.started = true

	s.wg.Add(2)
	go s.workerLoop()
	go s.cleanupLoop()

	logging.Debug("scheduler started")
	return nil
}

// Stop refuses new submissions, lets the worker drain the queue, and
// waits for it to exit. Tasks executed during the drain keep a live
// context; it is cancelled only once the worker has finished.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	close(s.stopCh)
	s.cond.Broadcast()

	if started {
		s.wg.Wait()
	}
	s.cancel()
	logging.Debug("scheduler stopped")
}

// workerLoop pops tasks in priority order until stopped and drained.
func (s *Scheduler) workerLoop() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for s.queue.Len() == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.queue.Len() == 0 && s.stopped {
			s.mu.Unlock()
			return
		}
		task := heap.Pop(&s.queue).(*Task)
		handler := s.handlers[task.Kind]
		s.mu.Unlock()

		s.execute(task, handler)
	}
}

// execute runs one task behind a panic boundary so a broken handler
// cannot kill the worker.
func (s *Scheduler) execute(task *Task, handler TaskHandler) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("task %s (%s) panicked: %v\n%s", task.ID, task.Kind, r, debug.Stack())
			s.mu.Lock()
			s.failed++
			s.mu.Unlock()
		}
	}()

	if handler == nil {
		logging.Warn("no handler for task kind %s, dropping task %s", task.Kind, task.ID)
		s.mu.Lock()
		s.failed++
		s.mu.Unlock()
		return
	}

	err := handler(s.ctx, task)

	s.mu.Lock()
	s.executed++
	if err != nil {
		s.failed++
	}
	s.mu.Unlock()

	if err != nil {
		logging.Warn("task %s (%s) failed: %v", task.ID, task.Kind, err)
	}
}

// cleanupLoop fires the cleanup callback on a fixed interval.
func (s *Scheduler) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			fn := s.onCleanup
			s.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	}
}

// QueueDepth returns the number of tasks waiting to run.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Stats contains scheduler counters.
type Stats struct {
	Started   bool  `json:"started"`
	Stopped   bool  `json:"stopped"`
	QueueSize int   `json:"queue_size"`
	Submitted int64 `json:"submitted"`
	Executed  int64 `json:"executed"`
	Failed    int64 `json:"failed"`
}

// GetStats returns a snapshot of scheduler counters.
func (s *Scheduler) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Started:   s.started,
		Stopped:   s.stopped,
		QueueSize: s.queue.Len(),
		Submitted: s.submitted,
		Executed:  s.executed,
		Failed:    s.failed,
	}
}

// ====== Priority Queue ======

// taskQueue orders by priority descending, then submission order.
type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(*Task)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return task
}
