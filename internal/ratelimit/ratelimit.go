// Package ratelimit implements component A: a fixed one-hour sliding-window
// counter per {channel,recipient} key, with a pluggable backend so a single
// process can run in-memory and a fleet can share counters through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"notifyhub/internal/logging"
	"notifyhub/internal/model"
)

// Window is the fixed sliding-window duration for every rate-limit key.
const Window = time.Hour

// DefaultLimits are the channel caps from spec §4.A, overridable at
// construction time via WithLimit.
func DefaultLimits() map[model.Channel]int {
	return map[model.Channel]int{
		model.ChannelEmail: 1000,
		model.ChannelSMS:   100,
		model.ChannelPush:  10000,
		model.ChannelInApp: 1000,
	}
}

// Backend is the pluggable counter store behind the Limiter. tryAdd must be
// atomic with respect to concurrent callers on the same key: it either
// admits n and commits the increment, or rejects n and leaves the counter
// untouched.
type Backend interface {
	// tryAdd creates or resets the window for key if the previous one is
	// stale (now-windowStart >= Window), then admits n iff count+n<=limit,
	// committing the increment only when admitted.
	tryAdd(ctx context.Context, key string, now time.Time, limit, n int) (allowed bool, count int, err error)
	// peek returns the current counter without mutating state.
	peek(ctx context.Context, key string, now time.Time) (count int, err error)
	// sweep removes windows older than olderThan and any orphan counters.
	sweep(ctx context.Context, olderThan time.Time) error
}

// Limiter is the component A contract: allow/record keyed by
// "{channel}:{recipient}" or "{channel}:global".
type Limiter struct {
	backend    Backend
	limits     map[model.Channel]int
	mu         sync.RWMutex
	failClosed bool
}

// Option configures a Limiter at construction time.
type Option func(*Limiter)

// WithLimit overrides the per-hour cap for a channel.
func WithLimit(ch model.Channel, perHour int) Option {
	return func(l *Limiter) { l.limits[ch] = perHour }
}

// WithFailClosed makes the limiter deny (rather than allow) on internal
// inconsistency. Default is fail-open per spec §4.A.
func WithFailClosed(failClosed bool) Option {
	return func(l *Limiter) { l.failClosed = failClosed }
}

// New builds a Limiter over the given backend.
func New(backend Backend, opts ...Option) *Limiter {
	l := &Limiter{backend: backend, limits: DefaultLimits()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key builds the rate-limit key for a (channel, recipient) pair, or the
// channel-wide global key when recipient is empty.
func Key(ch model.Channel, recipient string) string {
	if recipient == "" {
		return fmt.Sprintf("%s:global", ch)
	}
	return fmt.Sprintf("%s:%s", ch, recipient)
}

func (l *Limiter) limit(ch model.Channel) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n, ok := l.limits[ch]; ok {
		return n
	}
	return 1000
}

// Allow reports whether n more calls would be admitted under key's channel
// limit, without recording them. Never surfaces an error: on internal
// inconsistency it defaults to allow=true (fail-open) unless the limiter was
// constructed with WithFailClosed(true).
func Allow(ctx context.Context, l *Limiter, ch model.Channel, recipient string, n int) bool {
	key := Key(ch, recipient)
	count, err := l.backend.peek(ctx, key, time.Now())
	if err != nil {
		logging.Warn("ratelimit: peek(%s) failed: %v", key, err)
		return !l.failClosed
	}
	return count+n <= l.limit(ch)
}

// Record admits and commits n calls for key unconditionally, for callers
// that already ran their own admission check. Most callers should prefer
// AllowAndRecord, which checks and commits atomically.
func (l *Limiter) Record(ctx context.Context, ch model.Channel, recipient string, n int) {
	key := Key(ch, recipient)
	if _, _, err := l.backend.tryAdd(ctx, key, time.Now(), 1<<30, n); err != nil {
		logging.Warn("ratelimit: record(%s) failed: %v", key, err)
	}
}

// AllowAndRecord atomically checks and, if admitted, commits n calls against
// key's channel limit. This is the method the Dispatcher uses.
func (l *Limiter) AllowAndRecord(ctx context.Context, ch model.Channel, recipient string, n int) bool {
	key := Key(ch, recipient)
	allowed, count, err := l.backend.tryAdd(ctx, key, time.Now(), l.limit(ch), n)
	if err != nil {
		logging.Warn("ratelimit: tryAdd(%s) failed: %v", key, err)
		return !l.failClosed
	}
	if !allowed {
		logging.Info("ratelimit: denied key=%s count=%d limit=%d", key, count, l.limit(ch))
	}
	return allowed
}

// StartJanitor runs the housekeeping sweep every interval until ctx is
// cancelled, removing windows older than 2h and any orphan counters.
func (l *Limiter) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.backend.sweep(ctx, time.Now().Add(-2*Window)); err != nil {
					logging.Warn("ratelimit: janitor sweep failed: %v", err)
				}
			}
		}
	}()
}
