package scheduler

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifyhub/internal/database"
	"notifyhub/internal/history"
	"notifyhub/internal/model"
)

func openHistory(t *testing.T) *history.Store {
	t.Helper()
	db, err := database.Open(&database.Config{Driver: database.DriverSQLite, DSN: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	migrator, err := database.NewMigrator(db, database.DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, migrator.ApplyAll())
	return history.New(db)
}

type fakeDispatcher struct {
	redispatched []model.DispatchRequest
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req model.DispatchRequest) error {
	f.redispatched = append(f.redispatched, req)
	return nil
}

func TestRetryTask_RequeuesEligibleFailures(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	req := model.DispatchRequest{NotificationID: "r1", Channel: model.ChannelEmail, Recipient: "user-1", Content: "hi", MaxRetryAttempts: 3}
	_, err := h.Create(ctx, req)
	require.NoError(t, err)
	require.NoError(t, h.UpdateStatus(ctx, "r1", model.StatusProcessing, "test"))
	require.NoError(t, h.MarkFailed(ctx, "r1", "smtp timeout", "", true))

	d := &fakeDispatcher{}
	task := RetryTask(h, d, time.Hour, 50)
	require.NoError(t, task.Run(ctx))

	require.Len(t, d.redispatched, 1)
	assert.Equal(t, "r1", d.redispatched[0].NotificationID)

	rec, err := h.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RetryCount)
}

func TestRetryTask_SkipsRecordsWithExhaustedBudget(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	req := model.DispatchRequest{NotificationID: "r2", Channel: model.ChannelEmail, Recipient: "user-2", Content: "hi", MaxRetryAttempts: 1}
	_, err := h.Create(ctx, req)
	require.NoError(t, err)
	require.NoError(t, h.UpdateStatus(ctx, "r2", model.StatusProcessing, "test"))
	require.NoError(t, h.MarkFailed(ctx, "r2", "permanent", "", true))
	require.NoError(t, h.IncrementRetry(ctx, "r2")) // retryCount now 1, == maxRetryAttempts
	require.NoError(t, h.UpdateStatus(ctx, "r2", model.StatusProcessing, "test"))
	require.NoError(t, h.MarkFailed(ctx, "r2", "permanent again", "", true))

	d := &fakeDispatcher{}
	task := RetryTask(h, d, time.Hour, 50)
	require.NoError(t, task.Run(ctx))

	assert.Empty(t, d.redispatched)
}

func TestHistoryRetentionTask_PurgesOldTerminalRows(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	req := model.DispatchRequest{NotificationID: "r3", Channel: model.ChannelEmail, Recipient: "user-3", Content: "hi", MaxRetryAttempts: 3}
	_, err := h.Create(ctx, req)
	require.NoError(t, err)
	require.NoError(t, h.UpdateStatus(ctx, "r3", model.StatusCancelled, "test"))

	task := HistoryRetentionTask(h, time.Hour, -time.Hour) // negative retention: cutoff is in the future, everything qualifies
	require.NoError(t, task.Run(ctx))

	_, err = h.Get(ctx, "r3")
	assert.Error(t, err)
}
