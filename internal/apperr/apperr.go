// Package apperr defines the error-kind vocabulary shared by every component
// boundary in notifyhub. No component is allowed to let a bare error or a
// panic cross its public API; every operation returns (value, error) where
// the error, if non-nil, is always classifiable via Kind.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error classifications used throughout the
// dispatch pipeline. Kind drives both the caller-facing HTTP status mapping
// and the retry/circuit-breaker decision.
type Kind string

const (
	// KindValidation covers bad addresses, oversized content, unknown
	// channels, and illegal state transitions. Never retried.
	KindValidation Kind = "validation"
	// KindNotFound covers missing templates, history rows, or preferences.
	KindNotFound Kind = "not_found"
	// KindAlreadyExists covers duplicate template names.
	KindAlreadyExists Kind = "already_exists"
	// KindPreferenceBlocked is terminal: recorded as CANCELLED(reason).
	KindPreferenceBlocked Kind = "preference_blocked"
	// KindRateLimited is terminal for this attempt.
	KindRateLimited Kind = "rate_limited"
	// KindTemplateNotFound downgrades to a warning when inline content is
	// present, else is terminal.
	KindTemplateNotFound Kind = "template_not_found"
	// KindTemplateInactive downgrades to a warning when inline content is
	// present, else is terminal.
	KindTemplateInactive Kind = "template_inactive"
	// KindAdapterTransient covers timeouts, 5xx, connection resets. Counted
	// by the circuit breaker and retried.
	KindAdapterTransient Kind = "adapter_transient"
	// KindAdapterPermanent covers 4xx/address-rejected. Fails without retry.
	KindAdapterPermanent Kind = "adapter_permanent"
	// KindMissingConfig covers a channel adapter missing required provider
	// credentials.
	KindMissingConfig Kind = "missing_config"
	// KindCircuitOpen is treated as transient by the dispatcher; the retry
	// scheduler re-queues with backoff equal to the remaining cooldown.
	KindCircuitOpen Kind = "circuit_open"
	// KindNoSession is terminal: IN_APP delivery with no connected session,
	// recorded as CANCELLED(no-session) when IN_APP_REQUIRE_SESSION is set.
	KindNoSession Kind = "no_session"
	// KindInvalidTransition covers an illegal HistoryRecord state change.
	KindInvalidTransition Kind = "invalid_transition"
	// KindInternal is a bug: logged with a stack, FAIL and alert.
	KindInternal Kind = "internal"
)

// Error is the concrete error type every notifyhub component returns.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, apperr.KindX) work by comparing kinds, so callers
// can write errors.Is(err, apperr.New(apperr.KindRateLimited, "")) sparingly,
// but the idiomatic check is apperr.Is(err, apperr.KindRateLimited).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a new *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a new *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts the Kind of err, defaulting to KindInternal for errors
// that were never classified — treating an un-classified error as a bug is
// intentional: every boundary must wrap with a Kind before returning.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return KindInternal
}

// Retryable reports whether the circuit-breaker/retry policy should attempt
// this error again. AdapterTransient and CircuitOpen are retryable;
// everything else is terminal for the current attempt.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindAdapterTransient, KindCircuitOpen:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Kind to the caller-facing status code per spec.md §7.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return 400
	case KindPreferenceBlocked:
		return 403
	case KindRateLimited:
		return 429
	case KindNotFound, KindTemplateNotFound:
		return 404
	case KindAlreadyExists, KindNoSession:
		return 409
	case KindCircuitOpen, KindAdapterTransient:
		return 503
	default:
		return 500
	}
}
