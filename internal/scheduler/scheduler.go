// Package scheduler runs the small set of periodic, cooperatively
// scheduled background jobs every notifyhub instance needs: the retry
// requeue sweep, the socket hub heartbeat, and the history retention sweep.
// The rate limiter janitor is not a Task: it runs its own loop through
// ratelimit.Limiter.StartJanitor. Adapted from the teacher's worker-pool
// job manager, narrowed from a generic job queue to a fixed set of named
// ticker-driven tasks, since nothing here is submitted at runtime.
package scheduler

import (
	"context"
	"sync"
	"time"

	"notifyhub/internal/logging"
)

// Task is one periodic unit of work.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler owns a fixed set of Tasks and runs each on its own ticker.
type Scheduler struct {
	mu     sync.Mutex
	tasks  []Task
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an empty Scheduler; call Register for each task before Start.
func New() *Scheduler {
	return &Scheduler{}
}

// Register adds t to the set of tasks run by Start. Registering after
// Start has no effect on already-running tasks.
func (s *Scheduler) Register(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
}

// Start launches one goroutine per registered task, each firing Run on its
// own interval until ctx is cancelled or Shutdown is called.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.Lock()
	tasks := append([]Task(nil), s.tasks...)
	s.mu.Unlock()

	for _, t := range tasks {
		s.wg.Add(1)
		go s.runTask(runCtx, t)
	}
}

func (s *Scheduler) runTask(ctx context.Context, t Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	logging.Info("scheduler: task %s started, interval=%s", t.Name, t.Interval)
	for {
		select {
		case <-ctx.Done():
			logging.Info("scheduler: task %s shutting down", t.Name)
			return
		case <-ticker.C:
			if err := t.Run(ctx); err != nil {
				logging.Warn("scheduler: task %s failed: %v", t.Name, err)
			}
		}
	}
}

// Shutdown cancels every running task and blocks until they've all
// returned, or timeout elapses first.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	if s.cancel == nil {
		return
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		logging.Warn("scheduler: shutdown timed out after %s, some tasks may still be running", timeout)
	}
}
