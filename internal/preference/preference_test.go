package preference

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	return New(db, nil)
}

func TestStore_GetOrCreateProvisionsDefaults(t *testing.T) {
	s := openStore(t)
	p, err := s.GetOrCreate(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, p.NotificationsEnabled)
	assert.Equal(t, model.ChannelEmail, p.PreferredChannel)
	assert.True(t, p.HasChannel(model.ChannelEmail))
	assert.True(t, p.HasChannel(model.ChannelInApp))
	assert.False(t, p.HasChannel(model.ChannelSMS))
	assert.Equal(t, 20, p.FrequencyLimitPerHour)
}

func TestStore_UpdateRecordsAudit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	_, err := s.GetOrCreate(ctx, "user-2")
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, "user-2", FieldPreferredChannel, "SMS", "user-2"))

	got, err := s.Get(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, model.ChannelSMS, got.PreferredChannel)

	entries, err := s.AuditLog(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "EMAIL", entries[0].OldValue)
	assert.Equal(t, "SMS", entries[0].NewValue)
}

func TestIsNotificationAllowed(t *testing.T) {
	p := Defaults("u")
	assert.True(t, IsNotificationAllowed(p, model.ChannelEmail, model.CategoryTrading))
	assert.False(t, IsNotificationAllowed(p, model.ChannelSMS, model.CategoryTrading))

	p.NotificationsEnabled = false
	assert.False(t, IsNotificationAllowed(p, model.ChannelEmail, model.CategoryTrading))
}

func TestIsWithinQuietHours_MidnightWraparound(t *testing.T) {
	p := Defaults("u")
	p.QuietHoursEnabled = true
	p.QuietStart = "22:00"
	p.QuietEnd = "07:00"
	p.TimeZone = "UTC"

	late := time.Date(2026, 1, 1, 23, 30, 0, 0, time.UTC)
	assert.True(t, IsWithinQuietHours(p, late))

	early := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)
	assert.True(t, IsWithinQuietHours(p, early))

	midday := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.False(t, IsWithinQuietHours(p, midday))
}

func TestIsWithinQuietHours_Disabled(t *testing.T) {
	p := Defaults("u")
	assert.False(t, IsWithinQuietHours(p, time.Now()))
}
