package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifyhub/internal/model"
)

func TestMemoryBackend_BoundaryAtLimit(t *testing.T) {
	l := New(NewMemoryBackend(), WithLimit(model.ChannelEmail, 3))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, l.AllowAndRecord(ctx, model.ChannelEmail, "u1", 1), "call %d should be allowed", i+1)
	}
	assert.False(t, l.AllowAndRecord(ctx, model.ChannelEmail, "u1", 1), "4th call should be denied")
}

func TestMemoryBackend_NewWindowResets(t *testing.T) {
	b := NewMemoryBackend()
	l := New(b, WithLimit(model.ChannelSMS, 1))
	ctx := context.Background()

	assert.True(t, l.AllowAndRecord(ctx, model.ChannelSMS, "u1", 1))
	assert.False(t, l.AllowAndRecord(ctx, model.ChannelSMS, "u1", 1))

	// Force the window to look stale.
	b.mu.Lock()
	b.counters[Key(model.ChannelSMS, "u1")].windowStart = time.Now().Add(-2 * Window)
	b.mu.Unlock()

	assert.True(t, l.AllowAndRecord(ctx, model.ChannelSMS, "u1", 1), "first call in a new window should be allowed")
}

func TestMemoryBackend_Janitor(t *testing.T) {
	b := NewMemoryBackend()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _, err := b.tryAdd(ctx, "k1", time.Now().Add(-3*Window), 10, 1)
	require.NoError(t, err)

	require.NoError(t, b.sweep(ctx, time.Now().Add(-2*Window)))

	b.mu.Lock()
	_, exists := b.counters["k1"]
	b.mu.Unlock()
	assert.False(t, exists, "stale counter should have been swept")
}

func TestRedisBackend_BoundaryAtLimit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := New(NewRedisBackend(client, "test:"), WithLimit(model.ChannelPush, 2))
	ctx := context.Background()

	assert.True(t, l.AllowAndRecord(ctx, model.ChannelPush, "u2", 1))
	assert.True(t, l.AllowAndRecord(ctx, model.ChannelPush, "u2", 1))
	assert.False(t, l.AllowAndRecord(ctx, model.ChannelPush, "u2", 1))
}

func TestLimiter_FailOpenOnBackendError(t *testing.T) {
	l := New(errBackend{}, WithFailClosed(false))
	assert.True(t, l.AllowAndRecord(context.Background(), model.ChannelEmail, "u3", 1))

	l2 := New(errBackend{}, WithFailClosed(true))
	assert.False(t, l2.AllowAndRecord(context.Background(), model.ChannelEmail, "u3", 1))
}

type errBackend struct{}

func (errBackend) tryAdd(context.Context, string, time.Time, int, int) (bool, int, error) {
	return false, 0, assertErr
}
func (errBackend) peek(context.Context, string, time.Time) (int, error) { return 0, assertErr }
func (errBackend) sweep(context.Context, time.Time) error                { return nil }

var assertErr = assertError("boom")

type assertError string

func (e assertError) Error() string { return string(e) }
