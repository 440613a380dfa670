package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"notifyhub/internal/apperr"
)

func TestManager_SucceedsWithoutRetry(t *testing.T) {
	m := New(Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})
	calls := 0
	result := m.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.True(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, result.Attempts)
}

func TestManager_RetriesTransientThenSucceeds(t *testing.T) {
	m := New(Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	calls := 0
	result := m.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return apperr.New(apperr.KindAdapterTransient, "timeout")
		}
		return nil
	})
	assert.True(t, result.Success)
	assert.Equal(t, 2, calls)
}

func TestManager_StopsOnNonRetryable(t *testing.T) {
	m := New(Config{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	calls := 0
	result := m.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return apperr.New(apperr.KindAdapterPermanent, "bad address")
	})
	assert.False(t, result.Success)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

func TestManager_ExhaustsMaxAttempts(t *testing.T) {
	m := New(Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	calls := 0
	result := m.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return apperr.New(apperr.KindAdapterTransient, "timeout")
	})
	assert.False(t, result.Success)
	assert.Equal(t, 3, calls)
}

func TestManager_Run_ConcurrentCallsDoNotRace(t *testing.T) {
	m := New(Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			done <- m.Run(context.Background(), Operation{Name: "x"}, func(ctx context.Context) error {
				return nil
			})
		}()
	}
	for i := 0; i < 10; i++ {
		assert.NoError(t, <-done)
	}
}
