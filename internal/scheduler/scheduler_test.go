package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_RunsTaskOnInterval(t *testing.T) {
	s := New()
	var calls int64
	s.Register(Task{
		Name:     "counter",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&calls, 1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(55 * time.Millisecond)
	cancel()
	s.Shutdown(time.Second)

	assert.GreaterOrEqual(t, atomic.LoadInt64(&calls), int64(3))
}

func TestScheduler_ShutdownStopsTasks(t *testing.T) {
	s := New()
	var calls int64
	s.Register(Task{
		Name:     "counter",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&calls, 1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Shutdown(time.Second)

	after := atomic.LoadInt64(&calls)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt64(&calls), "no further calls should happen after Shutdown")
}

func TestScheduler_TaskErrorDoesNotStopOtherTasks(t *testing.T) {
	s := New()
	var failingCalls, okCalls int64
	s.Register(Task{
		Name:     "failing",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&failingCalls, 1)
			return assertErr
		},
	})
	s.Register(Task{
		Name:     "ok",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&okCalls, 1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	s.Shutdown(time.Second)

	assert.Greater(t, atomic.LoadInt64(&failingCalls), int64(0))
	assert.Greater(t, atomic.LoadInt64(&okCalls), int64(0))
}

type testError string

func (e testError) Error() string { return string(e) }

const assertErr = testError("boom")
