package scheduler

import (
	"context"
	"time"

	"notifyhub/internal/history"
	"notifyhub/internal/logging"
	"notifyhub/internal/model"
	"notifyhub/internal/sockethub"
)

// dispatcher is the subset of *dispatcher.Dispatcher the retry task needs.
// Declared locally so scheduler depends on a contract, not the dispatcher
// package's internals.
type dispatcher interface {
	Dispatch(ctx context.Context, req model.DispatchRequest) error
}

// RetryTask re-queues FAILED records eligible for another attempt (spec.md
// §4.D/§5's retry scheduler), bumping retryCount before handing each back
// to the Dispatcher so a crash mid-retry can't double-count the attempt.
func RetryTask(h *history.Store, d dispatcher, interval time.Duration, batchSize int) Task {
	return Task{
		Name:     "retry-requeue",
		Interval: interval,
		Run: func(ctx context.Context) error {
			eligible, err := h.ListEligibleForRetry(ctx, batchSize)
			if err != nil {
				return err
			}
			for _, rec := range eligible {
				if err := h.IncrementRetry(ctx, rec.NotificationID); err != nil {
					logging.Warn("scheduler: retry-requeue: could not bump retry count for %s: %v", rec.NotificationID, err)
					continue
				}
				req := model.DispatchRequest{
					NotificationID:   rec.NotificationID,
					CorrelationID:    rec.CorrelationID,
					Channel:          rec.Channel,
					Recipient:        rec.Recipient,
					Subject:          rec.Subject,
					Content:          rec.Content,
					TemplateName:     rec.TemplateName,
					ReferenceID:      rec.ReferenceID,
					ReferenceType:    rec.ReferenceType,
					MaxRetryAttempts: rec.MaxRetryAttempts,
				}
				if err := d.Dispatch(ctx, req); err != nil {
					logging.Warn("scheduler: retry-requeue: redispatch of %s failed: %v", rec.NotificationID, err)
				}
			}
			return nil
		},
	}
}

// HistoryRetentionTask purges terminal history rows older than retention,
// the AUDIT_RETENTION_DAYS sweep from spec.md §6.
func HistoryRetentionTask(h *history.Store, interval, retention time.Duration) Task {
	return Task{
		Name:     "history-retention",
		Interval: interval,
		Run: func(ctx context.Context) error {
			cutoff := time.Now().Add(-retention)
			n, err := h.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				return err
			}
			if n > 0 {
				logging.Info("scheduler: history-retention purged %d rows older than %s", n, cutoff)
			}
			return nil
		},
	}
}

// SocketHeartbeatTask closes sockets that have gone silent past the
// heartbeat window (spec.md §4.H).
func SocketHeartbeatTask(hub *sockethub.Hub, interval time.Duration) Task {
	return Task{
		Name:     "socket-heartbeat",
		Interval: interval,
		Run: func(ctx context.Context) error {
			hub.HeartbeatSweep()
			return nil
		},
	}
}
