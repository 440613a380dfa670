package channels

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifyhub/internal/apperr"
	"notifyhub/internal/breaker"
	"notifyhub/internal/model"
	"notifyhub/internal/retry"
)

func TestComposed_RetriesTransientFailure(t *testing.T) {
	calls := 0
	inner := NewNoop(model.ChannelEmail)
	inner.OnSend = func(req model.DispatchRequest) error {
		calls++
		if calls < 2 {
			return apperr.New(apperr.KindAdapterTransient, "timeout")
		}
		return nil
	}

	b := breaker.New(breaker.DefaultConfig("email"))
	r := retry.New(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	composed := NewComposed(inner, b, r, time.Second)

	_, _, err := composed.Send(context.Background(), model.DispatchRequest{NotificationID: "n1", Channel: model.ChannelEmail})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestComposed_PermanentFailureNotRetried(t *testing.T) {
	calls := 0
	inner := NewNoop(model.ChannelSMS)
	inner.OnSend = func(req model.DispatchRequest) error {
		calls++
		return apperr.New(apperr.KindAdapterPermanent, "bad address")
	}

	b := breaker.New(breaker.DefaultConfig("sms"))
	r := retry.New(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	composed := NewComposed(inner, b, r, time.Second)

	_, _, err := composed.Send(context.Background(), model.DispatchRequest{NotificationID: "n2", Channel: model.ChannelSMS})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, apperr.Is(err, apperr.KindAdapterPermanent))
}

func TestComposed_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	inner := NewNoop(model.ChannelPush)
	inner.OnSend = func(req model.DispatchRequest) error {
		return apperr.New(apperr.KindAdapterTransient, "down")
	}

	cfg := breaker.DefaultConfig("push")
	cfg.MinRequests = 2
	cfg.ErrorRateToTrip = 0.5
	b := breaker.New(cfg)
	r := retry.New(retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
	composed := NewComposed(inner, b, r, time.Second)

	for i := 0; i < 3; i++ {
		_, _, _ = composed.Send(context.Background(), model.DispatchRequest{NotificationID: "n3", Channel: model.ChannelPush})
	}

	_, _, err := composed.Send(context.Background(), model.DispatchRequest{NotificationID: "n3", Channel: model.ChannelPush})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindCircuitOpen))
}
