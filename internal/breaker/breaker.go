// Package breaker wraps sony/gobreaker per channel, translating its open/
// half-open rejection into the apperr.KindCircuitOpen classification the
// rest of notifyhub already knows how to treat as retryable-with-backoff.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"notifyhub/internal/apperr"
	"notifyhub/internal/logging"
)

// Config tunes one channel's circuit breaker, named CB_{channel}_* in spec §6.
type Config struct {
	Name             string
	ErrorRateToTrip  float64 // fraction of failures in Interval that trips OPEN
	MinRequests      uint32  // minimum requests in Interval before ReadyToTrip considers tripping
	OpenWait         time.Duration
	HalfOpenMaxCalls uint32
}

// DefaultConfig returns a conservative policy for a named channel.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		ErrorRateToTrip:  0.5,
		MinRequests:      10,
		OpenWait:         30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// Breaker is a single gobreaker.CircuitBreaker scoped to one channel.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New builds a Breaker from cfg.
func New(cfg Config) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenMaxCalls,
		Timeout:     cfg.OpenWait,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.ErrorRateToTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info("breaker: %s transitioned %s -> %s", name, from, to)
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. An open or half-open-exhausted
// breaker rejects fn without calling it, reported as KindCircuitOpen.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", apperr.Wrap(apperr.KindCircuitOpen, b.cb.Name()+" circuit is open", err)
		}
		return "", err
	}
	msgID, _ := result.(string)
	return msgID, nil
}

// State reports the breaker's current state, for a health/status endpoint.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }
