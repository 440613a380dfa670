// Package channels implements component E: one adapter per delivery
// modality (EMAIL, SMS, PUSH, IN_APP), each wrapped by a composed
// TimeLimiter∘Retry∘CircuitBreaker policy so the Dispatcher only ever calls
// a uniform Send contract regardless of which external provider is behind
// it.
package channels

import (
	"context"
	"time"

	"notifyhub/internal/apperr"
	"notifyhub/internal/breaker"
	"notifyhub/internal/model"
	"notifyhub/internal/retry"
)

// Adapter is the per-channel contract the Dispatcher calls.
type Adapter interface {
	// Send delivers req and returns a provider-assigned external message id
	// on success, plus whether the provider confirmed delivery
	// synchronously (only IN_APP's local hand-off does today) — the
	// Dispatcher uses that to go straight to DELIVERED instead of stopping
	// at SENT. Every returned error is apperr-classified.
	Send(ctx context.Context, req model.DispatchRequest) (externalMessageID string, delivered bool, err error)
	Channel() model.Channel
}

// Composed wraps an Adapter with TimeLimiter(outermost) ∘ Retry ∘
// CircuitBreaker(innermost), matching spec §4.E's call order: the circuit
// breaker decides whether the underlying provider gets called at all, retry
// decides whether a transient failure gets another attempt, and the time
// limiter bounds the whole composition so one slow provider call can never
// stall the Dispatcher's worker indefinitely.
type Composed struct {
	inner   Adapter
	breaker *breaker.Breaker
	retrier *retry.Manager
	timeout time.Duration
}

// NewComposed builds the composed adapter around inner.
func NewComposed(inner Adapter, b *breaker.Breaker, r *retry.Manager, timeout time.Duration) *Composed {
	return &Composed{inner: inner, breaker: b, retrier: r, timeout: timeout}
}

func (c *Composed) Channel() model.Channel { return c.inner.Channel() }

// Send runs inner.Send through the full policy composition. delivered is
// only meaningful on success; a retried-then-successful attempt reports
// whatever the last attempt returned.
func (c *Composed) Send(ctx context.Context, req model.DispatchRequest) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var externalID string
	var delivered bool
	result := c.retrier.Execute(ctx, func(ctx context.Context) error {
		id, err := c.breaker.Execute(ctx, func(ctx context.Context) (string, error) {
			msgID, ok, sendErr := c.inner.Send(ctx, req)
			delivered = ok
			return msgID, sendErr
		})
		externalID = id
		return err
	})

	if result.Success {
		return externalID, delivered, nil
	}
	if result.LastError == nil {
		return "", false, apperr.New(apperr.KindAdapterTransient, "send timed out")
	}
	return "", false, result.LastError
}
