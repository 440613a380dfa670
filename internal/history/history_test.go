package history

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifyhub/internal/apperr"
	"notifyhub/internal/database"
	"notifyhub/internal/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(&database.Config{Driver: database.DriverSQLite, DSN: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	migrator, err := database.NewMigrator(db, database.DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, migrator.ApplyAll())
	return New(db)
}

func TestStore_CreateIsIdempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	req := model.DispatchRequest{NotificationID: "n1", Channel: model.ChannelEmail, Recipient: "a@b.com", MaxRetryAttempts: 3}

	first, err := s.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, first.Status)

	second, err := s.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.NotificationID, second.NotificationID)
}

func TestStore_LegalTransitionSequence(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	req := model.DispatchRequest{NotificationID: "n2", Channel: model.ChannelEmail, Recipient: "a@b.com", MaxRetryAttempts: 3}
	_, err := s.Create(ctx, req)
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(ctx, "n2", model.StatusProcessing, "dispatcher"))
	require.NoError(t, s.UpdateStatus(ctx, "n2", model.StatusSent, "dispatcher"))
	require.NoError(t, s.UpdateStatus(ctx, "n2", model.StatusDelivered, "adapter"))

	got, err := s.Get(ctx, "n2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, got.Status)
	assert.NotNil(t, got.DeliveredAt)
}

func TestStore_IllegalTransitionRejected(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	req := model.DispatchRequest{NotificationID: "n3", Channel: model.ChannelEmail, Recipient: "a@b.com", MaxRetryAttempts: 3}
	_, err := s.Create(ctx, req)
	require.NoError(t, err)

	err = s.UpdateStatus(ctx, "n3", model.StatusDelivered, "adapter")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
}

func TestStore_RetryBudgetEnforced(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	req := model.DispatchRequest{NotificationID: "n4", Channel: model.ChannelSMS, Recipient: "+1", MaxRetryAttempts: 1}
	_, err := s.Create(ctx, req)
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(ctx, "n4", model.StatusProcessing, "dispatcher"))
	require.NoError(t, s.MarkFailed(ctx, "n4", "timeout", "", true))

	require.NoError(t, s.IncrementRetry(ctx, "n4"))

	got, err := s.Get(ctx, "n4")
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, got.Status)
	assert.Equal(t, 1, got.RetryCount)

	require.NoError(t, s.UpdateStatus(ctx, "n4", model.StatusProcessing, "dispatcher"))
	require.NoError(t, s.MarkFailed(ctx, "n4", "timeout again", "", true))

	err = s.IncrementRetry(ctx, "n4")
	require.Error(t, err, "retry budget of 1 should now be exhausted")
}

func TestStore_ListEligibleForRetry(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	req := model.DispatchRequest{NotificationID: "n5", Channel: model.ChannelEmail, Recipient: "x", MaxRetryAttempts: 3}
	_, err := s.Create(ctx, req)
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, "n5", model.StatusProcessing, "d"))
	require.NoError(t, s.MarkFailed(ctx, "n5", "boom", "", true))

	eligible, err := s.ListEligibleForRetry(ctx, 10)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, "n5", eligible[0].NotificationID)
}

func TestStore_MarkFailedNonRetryableExhaustsBudget(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	req := model.DispatchRequest{NotificationID: "n5b", Channel: model.ChannelEmail, Recipient: "x", MaxRetryAttempts: 3}
	_, err := s.Create(ctx, req)
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, "n5b", model.StatusProcessing, "d"))
	require.NoError(t, s.MarkFailed(ctx, "n5b", "bad address", "", false))

	got, err := s.Get(ctx, "n5b")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.False(t, got.CanRetry())

	eligible, err := s.ListEligibleForRetry(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestStore_CancelRecordsReason(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	req := model.DispatchRequest{NotificationID: "n5c", Channel: model.ChannelSMS, Recipient: "+1", MaxRetryAttempts: 3}
	_, err := s.Create(ctx, req)
	require.NoError(t, err)

	require.NoError(t, s.Cancel(ctx, "n5c", "rate-limit"))

	got, err := s.Get(ctx, "n5c")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, "rate-limit", got.ErrorMessage)

	err = s.UpdateStatus(ctx, "n5c", model.StatusProcessing, "dispatcher")
	require.Error(t, err, "CANCELLED is terminal")
}

func TestStore_ListByRecipientFilters(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	mk := func(id string, ch model.Channel) {
		_, err := s.Create(ctx, model.DispatchRequest{NotificationID: id, Channel: ch, Recipient: "user-filter", MaxRetryAttempts: 3})
		require.NoError(t, err)
	}
	mk("f1", model.ChannelEmail)
	mk("f2", model.ChannelSMS)
	require.NoError(t, s.UpdateStatus(ctx, "f2", model.StatusProcessing, "d"))
	require.NoError(t, s.UpdateStatus(ctx, "f2", model.StatusSent, "d"))

	all, err := s.ListByRecipient(ctx, "user-filter", RecipientFilter{}, 0, 20)
	require.NoError(t, err)
	assert.Len(t, all.Records, 2)

	byChannel, err := s.ListByRecipient(ctx, "user-filter", RecipientFilter{Channel: model.ChannelSMS}, 0, 20)
	require.NoError(t, err)
	require.Len(t, byChannel.Records, 1)
	assert.Equal(t, "f2", byChannel.Records[0].NotificationID)

	byStatus, err := s.ListByRecipient(ctx, "user-filter", RecipientFilter{Status: model.StatusQueued}, 0, 20)
	require.NoError(t, err)
	require.Len(t, byStatus.Records, 1)
	assert.Equal(t, "f1", byStatus.Records[0].NotificationID)
}

func TestStore_DeleteOlderThan(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	req := model.DispatchRequest{NotificationID: "n6", Channel: model.ChannelEmail, Recipient: "x", MaxRetryAttempts: 3}
	_, err := s.Create(ctx, req)
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, "n6", model.StatusProcessing, "d"))
	require.NoError(t, s.UpdateStatus(ctx, "n6", model.StatusSent, "d"))
	require.NoError(t, s.UpdateStatus(ctx, "n6", model.StatusDelivered, "d"))

	n, err := s.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
