// Package preference implements component C: each user's personal policy
// over which notifications they receive, through which channel, and when,
// plus an audit trail of every change made to that policy.
package preference

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"notifyhub/internal/apperr"
	"notifyhub/internal/cache"
	"notifyhub/internal/model"
)

// Store is the component C contract.
type Store struct {
	db    *sql.DB
	cache *cache.Layered
	ttl   time.Duration
}

// New builds a Store. cacheLayer may be nil to disable caching.
func New(db *sql.DB, cacheLayer *cache.Layered) *Store {
	return &Store{db: db, cache: cacheLayer, ttl: 5 * time.Minute}
}

func cacheKey(userID string) string { return "preference:" + userID }

// Defaults returns the preference policy assigned to a user who has never
// customized anything, per spec §4.C.
func Defaults(userID string) model.UserPreference {
	return model.UserPreference{
		UserID:                userID,
		NotificationsEnabled:  true,
		PreferredChannel:      model.ChannelEmail,
		EnabledChannels:       map[model.Channel]bool{model.ChannelEmail: true, model.ChannelInApp: true},
		EnabledCategories: map[model.TemplateCategory]bool{
			model.CategoryTrading:   true,
			model.CategoryAccount:   true,
			model.CategorySecurity:  true,
			model.CategoryMarketing: true,
			model.CategorySystem:    true,
		},
		QuietHoursEnabled:     false,
		TimeZone:              "UTC",
		FrequencyLimitPerHour: 20,
		FrequencyLimitPerDay:  100,
		Language:              "en",
	}
}

func encodeChannels(m map[model.Channel]bool) string {
	var names []string
	for c, on := range m {
		if on {
			names = append(names, string(c))
		}
	}
	return strings.Join(names, ",")
}

func decodeChannels(s string) map[model.Channel]bool {
	out := map[model.Channel]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out[model.Channel(part)] = true
		}
	}
	return out
}

func encodeCategories(m map[model.TemplateCategory]bool) string {
	var names []string
	for c, on := range m {
		if on {
			names = append(names, string(c))
		}
	}
	return strings.Join(names, ",")
}

func decodeCategories(s string) map[model.TemplateCategory]bool {
	out := map[model.TemplateCategory]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out[model.TemplateCategory(part)] = true
		}
	}
	return out
}

const prefColumns = `user_id, notifications_enabled, preferred_channel, enabled_channels,
	enabled_categories, email_address, phone_number, device_token, quiet_hours_enabled,
	quiet_start, quiet_end, time_zone, frequency_limit_per_hour, frequency_limit_per_day,
	language, updated_at`

func scanPreference(row interface{ Scan(...interface{}) error }) (model.UserPreference, error) {
	var p model.UserPreference
	var channels, categories string
	var quietStart, quietEnd sql.NullString
	err := row.Scan(&p.UserID, &p.NotificationsEnabled, &p.PreferredChannel, &channels, &categories,
		&p.EmailAddress, &p.PhoneNumber, &p.DeviceToken, &p.QuietHoursEnabled,
		&quietStart, &quietEnd, &p.TimeZone, &p.FrequencyLimitPerHour, &p.FrequencyLimitPerDay,
		&p.Language, &p.UpdatedAt)
	p.EnabledChannels = decodeChannels(channels)
	p.EnabledCategories = decodeCategories(categories)
	p.QuietStart = quietStart.String
	p.QuietEnd = quietEnd.String
	return p, err
}

// Get returns the stored preference for userID, or KindNotFound if the user
// has never been provisioned.
func (s *Store) Get(ctx context.Context, userID string) (model.UserPreference, error) {
	if s.cache != nil {
		var p model.UserPreference
		if s.cache.Get(ctx, cacheKey(userID), &p) {
			return p, nil
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM user_notification_preferences WHERE user_id = ?`, prefColumns)
	row := s.db.QueryRowContext(ctx, query, userID)
	p, err := scanPreference(row)
	if err == sql.ErrNoRows {
		return model.UserPreference{}, apperr.New(apperr.KindNotFound, "no preference for user "+userID)
	}
	if err != nil {
		return model.UserPreference{}, apperr.Wrap(apperr.KindInternal, "querying preference", err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, cacheKey(userID), p, s.ttl)
	}
	return p, nil
}

// GetOrCreate returns the stored preference, provisioning the default
// policy on first access.
func (s *Store) GetOrCreate(ctx context.Context, userID string) (model.UserPreference, error) {
	p, err := s.Get(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return model.UserPreference{}, err
	}

	p = Defaults(userID)
	if err := s.insert(ctx, p); err != nil {
		return model.UserPreference{}, err
	}
	return p, nil
}

func (s *Store) insert(ctx context.Context, p model.UserPreference) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO user_notification_preferences
		(user_id, notifications_enabled, preferred_channel, enabled_channels, enabled_categories,
		 email_address, phone_number, device_token, quiet_hours_enabled, quiet_start, quiet_end,
		 time_zone, frequency_limit_per_hour, frequency_limit_per_day, language)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.NotificationsEnabled, p.PreferredChannel, encodeChannels(p.EnabledChannels),
		encodeCategories(p.EnabledCategories), p.EmailAddress, p.PhoneNumber, p.DeviceToken,
		p.QuietHoursEnabled, p.QuietStart, p.QuietEnd, p.TimeZone, p.FrequencyLimitPerHour,
		p.FrequencyLimitPerDay, p.Language)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "inserting default preference", err)
	}
	return nil
}

// Field is one editable preference attribute, used for the scoped-update
// endpoint and its audit trail.
type Field string

const (
	FieldNotificationsEnabled Field = "notifications_enabled"
	FieldPreferredChannel     Field = "preferred_channel"
	FieldEnabledChannels      Field = "enabled_channels"
	FieldEnabledCategories    Field = "enabled_categories"
	FieldEmailAddress         Field = "email_address"
	FieldPhoneNumber          Field = "phone_number"
	FieldDeviceToken          Field = "device_token"
	FieldQuietHoursEnabled    Field = "quiet_hours_enabled"
	FieldQuietStart           Field = "quiet_start"
	FieldQuietEnd             Field = "quiet_end"
	FieldTimeZone             Field = "time_zone"
	FieldFrequencyPerHour     Field = "frequency_limit_per_hour"
	FieldFrequencyPerDay      Field = "frequency_limit_per_day"
	FieldLanguage             Field = "language"
)

// Update applies a single field-scoped change, recording the before/after
// value in the audit log. changedBy identifies the actor (userId itself,
// or an admin actor for support-driven changes).
func (s *Store) Update(ctx context.Context, userID string, field Field, newValue string, changedBy string) error {
	current, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	oldValue := fieldValue(current, field)

	column, ok := columnFor(field)
	if !ok {
		return apperr.New(apperr.KindValidation, "unknown preference field "+string(field))
	}

	query := fmt.Sprintf(`UPDATE user_notification_preferences SET %s = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`, column)
	if _, err := s.db.ExecContext(ctx, query, newValue, userID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "updating preference field", err)
	}

	if _, err := s.db.ExecContext(ctx, `INSERT INTO preference_audit_log (user_id, field, old_value, new_value, changed_by) VALUES (?, ?, ?, ?, ?)`,
		userID, field, oldValue, newValue, changedBy); err != nil {
		return apperr.Wrap(apperr.KindInternal, "recording preference audit entry", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, cacheKey(userID))
	}
	return nil
}

func columnFor(f Field) (string, bool) {
	switch f {
	case FieldNotificationsEnabled, FieldPreferredChannel, FieldEnabledChannels, FieldEnabledCategories,
		FieldEmailAddress, FieldPhoneNumber, FieldDeviceToken, FieldQuietHoursEnabled,
		FieldQuietStart, FieldQuietEnd, FieldTimeZone, FieldFrequencyPerHour, FieldFrequencyPerDay, FieldLanguage:
		return string(f), true
	default:
		return "", false
	}
}

func fieldValue(p model.UserPreference, f Field) string {
	switch f {
	case FieldNotificationsEnabled:
		return fmt.Sprint(p.NotificationsEnabled)
	case FieldPreferredChannel:
		return string(p.PreferredChannel)
	case FieldEnabledChannels:
		return encodeChannels(p.EnabledChannels)
	case FieldEnabledCategories:
		return encodeCategories(p.EnabledCategories)
	case FieldEmailAddress:
		return p.EmailAddress
	case FieldPhoneNumber:
		return p.PhoneNumber
	case FieldDeviceToken:
		return p.DeviceToken
	case FieldQuietHoursEnabled:
		return fmt.Sprint(p.QuietHoursEnabled)
	case FieldQuietStart:
		return p.QuietStart
	case FieldQuietEnd:
		return p.QuietEnd
	case FieldTimeZone:
		return p.TimeZone
	case FieldFrequencyPerHour:
		return fmt.Sprint(p.FrequencyLimitPerHour)
	case FieldFrequencyPerDay:
		return fmt.Sprint(p.FrequencyLimitPerDay)
	case FieldLanguage:
		return p.Language
	default:
		return ""
	}
}

// AuditEntry is one recorded preference change.
type AuditEntry struct {
	Field     string
	OldValue  string
	NewValue  string
	ChangedBy string
	ChangedAt time.Time
}

// AuditLog returns every recorded change for userID, newest first.
func (s *Store) AuditLog(ctx context.Context, userID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT field, old_value, new_value, changed_by, changed_at
		FROM preference_audit_log WHERE user_id = ? ORDER BY changed_at DESC, id DESC`, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "querying audit log", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.Field, &e.OldValue, &e.NewValue, &e.ChangedBy, &e.ChangedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scanning audit row", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// IsNotificationAllowed reports whether a notification in category through
// channel should be delivered to a user with preference p, ignoring quiet
// hours (checked separately via IsWithinQuietHours since URGENT priority
// bypasses quiet hours but never an explicit opt-out).
func IsNotificationAllowed(p model.UserPreference, ch model.Channel, category model.TemplateCategory) bool {
	if !p.NotificationsEnabled {
		return false
	}
	if !p.HasChannel(ch) {
		return false
	}
	return p.HasCategory(category)
}

// IsWithinQuietHours reports whether at (in p.TimeZone) falls inside the
// user's configured quiet window, correctly handling midnight wraparound
// (e.g. QuietStart="22:00", QuietEnd="07:00").
func IsWithinQuietHours(p model.UserPreference, at time.Time) bool {
	if !p.QuietHoursEnabled || p.QuietStart == "" || p.QuietEnd == "" {
		return false
	}
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	local := at.In(loc)
	nowMinutes := local.Hour()*60 + local.Minute()

	start, okS := parseHHMM(p.QuietStart)
	end, okE := parseHHMM(p.QuietEnd)
	if !okS || !okE {
		return false
	}

	if start == end {
		return false
	}
	if start < end {
		return nowMinutes >= start && nowMinutes < end
	}
	// Wraps midnight: e.g. 22:00-07:00.
	return nowMinutes >= start || nowMinutes < end
}

func parseHHMM(s string) (int, bool) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
