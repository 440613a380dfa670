// Package history implements component D: the durable record of every
// notification's lifecycle, enforcing the legal state transitions from
// spec §4.D and providing the queries the retry scheduler, analytics
// aggregator, and status endpoint all read from.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

// Store is the component D contract.
type Store struct {
	db *sql.DB
}

// New builds a Store.
func New(db *sql.DB) *Store { return &Store{db: db} }

// legalTransitions enumerates every allowed status change. A transition not
// present here is rejected with KindInvalidTransition.
var legalTransitions = map[model.NotificationStatus][]model.NotificationStatus{
	model.StatusQueued:     {model.StatusProcessing, model.StatusCancelled},
	model.StatusProcessing: {model.StatusSent, model.StatusFailed},
	model.StatusSent:       {model.StatusDelivered, model.StatusFailed},
	model.StatusDelivered:  {model.StatusRead},
	model.StatusFailed:     {model.StatusQueued},
	model.StatusRead:       {},
	model.StatusCancelled:  {},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to model.NotificationStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

const historyColumns = `notification_id, correlation_id, channel, recipient, subject, content,
	template_name, status, retry_count, max_retry_attempts, created_at, last_attempt_at,
	delivered_at, error_message, external_message_id, reference_id, reference_type, updated_by`

func scanHistory(row interface{ Scan(...interface{}) error }) (model.HistoryRecord, error) {
	var h model.HistoryRecord
	var correlationID, errMsg, externalID, refID, refType, updatedBy sql.NullString
	var lastAttempt sql.NullTime
	var deliveredAt sql.NullTime
	err := row.Scan(&h.NotificationID, &correlationID, &h.Channel, &h.Recipient, &h.Subject, &h.Content,
		&h.TemplateName, &h.Status, &h.RetryCount, &h.MaxRetryAttempts, &h.CreatedAt, &lastAttempt,
		&deliveredAt, &errMsg, &externalID, &refID, &refType, &updatedBy)
	h.CorrelationID = correlationID.String
	h.ErrorMessage = errMsg.String
	h.ExternalMessageID = externalID.String
	h.ReferenceID = refID.String
	h.ReferenceType = refType.String
	h.UpdatedBy = updatedBy.String
	if lastAttempt.Valid {
		h.LastAttemptAt = lastAttempt.Time
	}
	if deliveredAt.Valid {
		h.DeliveredAt = &deliveredAt.Time
	}
	return h, err
}

// Create inserts a new QUEUED record. Idempotent on NotificationID: if a
// record with this id already exists, the existing record is returned
// instead of a duplicate-key error, which is what makes Dispatch idempotent.
func (s *Store) Create(ctx context.Context, req model.DispatchRequest) (model.HistoryRecord, error) {
	existing, err := s.Get(ctx, req.NotificationID)
	if err == nil {
		return existing, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return model.HistoryRecord{}, err
	}

	maxAttempts := req.MaxRetryAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	_, execErr := s.db.ExecContext(ctx, `INSERT INTO notification_history
		(notification_id, correlation_id, channel, recipient, subject, content, template_name,
		 status, retry_count, max_retry_attempts, reference_id, reference_type, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		req.NotificationID, req.CorrelationID, req.Channel, req.Recipient, req.Subject, req.Content,
		req.TemplateName, model.StatusQueued, maxAttempts, req.ReferenceID, req.ReferenceType, "dispatcher")
	if execErr != nil {
		return model.HistoryRecord{}, apperr.Wrap(apperr.KindInternal, "inserting history record", execErr)
	}

	return s.Get(ctx, req.NotificationID)
}

// Get returns the record for notificationID.
func (s *Store) Get(ctx context.Context, notificationID string) (model.HistoryRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_history WHERE notification_id = ?`, historyColumns)
	row := s.db.QueryRowContext(ctx, query, notificationID)
	h, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return model.HistoryRecord{}, apperr.New(apperr.KindNotFound, "no history record "+notificationID)
	}
	if err != nil {
		return model.HistoryRecord{}, apperr.Wrap(apperr.KindInternal, "querying history record", err)
	}
	return h, nil
}

// UpdateStatus transitions notificationID to newStatus, rejecting illegal
// transitions. Optimistic concurrency is enforced on (id, status,
// retry_count): the UPDATE only applies if the row's status still matches
// the expected `from` at write time.
func (s *Store) UpdateStatus(ctx context.Context, notificationID string, to model.NotificationStatus, updatedBy string) error {
	current, err := s.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if !CanTransition(current.Status, to) {
		return apperr.New(apperr.KindInvalidTransition, fmt.Sprintf("cannot move %s from %s to %s", notificationID, current.Status, to))
	}

	var extra string
	args := []interface{}{to, updatedBy}
	if to == model.StatusDelivered {
		extra = `, delivered_at = CURRENT_TIMESTAMP`
	}
	if to == model.StatusProcessing || to == model.StatusSent || to == model.StatusFailed {
		extra += `, last_attempt_at = CURRENT_TIMESTAMP`
	}

	query := fmt.Sprintf(`UPDATE notification_history SET status = ?, updated_by = ?%s
		WHERE notification_id = ? AND status = ? AND retry_count = ?`, extra)
	args = append(args, notificationID, current.Status, current.RetryCount)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "updating history status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindInvalidTransition, "history record changed concurrently, retry")
	}
	return nil
}

// MarkFailed transitions to FAILED and records the failure reason. A
// non-retryable cause (retryable=false) also forces retry_count up to
// max_retry_attempts so CanRetry() reports false and ListEligibleForRetry
// never re-queues it; a retryable cause leaves retry_count untouched so the
// retry scheduler can still pick it up.
func (s *Store) MarkFailed(ctx context.Context, notificationID, reason, externalMessageID string, retryable bool) error {
	current, err := s.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if !CanTransition(current.Status, model.StatusFailed) {
		return apperr.New(apperr.KindInvalidTransition, fmt.Sprintf("cannot fail %s from %s", notificationID, current.Status))
	}

	retryCount := current.RetryCount
	if !retryable {
		retryCount = current.MaxRetryAttempts
	}

	res, err := s.db.ExecContext(ctx, `UPDATE notification_history
		SET status = ?, error_message = ?, external_message_id = ?, retry_count = ?, last_attempt_at = CURRENT_TIMESTAMP
		WHERE notification_id = ? AND status = ? AND retry_count = ?`,
		model.StatusFailed, reason, externalMessageID, retryCount, notificationID, current.Status, current.RetryCount)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marking history failed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindInvalidTransition, "history record changed concurrently, retry")
	}
	return nil
}

// MarkSent transitions to SENT, recording the adapter-assigned external
// message id.
func (s *Store) MarkSent(ctx context.Context, notificationID, externalMessageID string) error {
	current, err := s.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if !CanTransition(current.Status, model.StatusSent) {
		return apperr.New(apperr.KindInvalidTransition, fmt.Sprintf("cannot mark %s sent from %s", notificationID, current.Status))
	}

	res, err := s.db.ExecContext(ctx, `UPDATE notification_history
		SET status = ?, external_message_id = ?, last_attempt_at = CURRENT_TIMESTAMP
		WHERE notification_id = ? AND status = ? AND retry_count = ?`,
		model.StatusSent, externalMessageID, notificationID, current.Status, current.RetryCount)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marking history sent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindInvalidTransition, "history record changed concurrently, retry")
	}
	return nil
}

// Cancel transitions to CANCELLED and records reason, one of "preferences",
// "quiet-hours", "rate-limit", or "no-session" per spec.md §4.F/§8.
func (s *Store) Cancel(ctx context.Context, notificationID, reason string) error {
	current, err := s.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if !CanTransition(current.Status, model.StatusCancelled) {
		return apperr.New(apperr.KindInvalidTransition, fmt.Sprintf("cannot cancel %s from %s", notificationID, current.Status))
	}

	res, err := s.db.ExecContext(ctx, `UPDATE notification_history
		SET status = ?, error_message = ?, updated_by = ?
		WHERE notification_id = ? AND status = ? AND retry_count = ?`,
		model.StatusCancelled, reason, "dispatcher", notificationID, current.Status, current.RetryCount)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "cancelling history record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindInvalidTransition, "history record changed concurrently, retry")
	}
	return nil
}

// UpdateRenderedContent overwrites notificationID's subject/content with the
// template-rendered values, once template resolution has run in PROCESSING.
// Unlike UpdateStatus this touches no status column, so it carries no
// transition check of its own.
func (s *Store) UpdateRenderedContent(ctx context.Context, notificationID, subject, content string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE notification_history SET subject = ?, content = ? WHERE notification_id = ?`,
		subject, content, notificationID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "updating rendered content", err)
	}
	return nil
}

// IncrementRetry moves a FAILED record back to QUEUED and bumps retry_count,
// guarded by CanRetry().
func (s *Store) IncrementRetry(ctx context.Context, notificationID string) error {
	current, err := s.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if !current.CanRetry() {
		return apperr.New(apperr.KindInvalidTransition, notificationID+" has exhausted its retry budget")
	}

	res, err := s.db.ExecContext(ctx, `UPDATE notification_history
		SET status = ?, retry_count = retry_count + 1
		WHERE notification_id = ? AND status = ? AND retry_count = ?`,
		model.StatusQueued, notificationID, model.StatusFailed, current.RetryCount)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "incrementing retry count", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindInvalidTransition, "history record changed concurrently, retry")
	}
	return nil
}

// CreateFailed inserts a record that originates already in the FAILED
// state (retryCount set to maxRetryAttempts, so CanRetry() is false),
// for the Dead-Letter Handler (component J): a record that exhausted
// retries already exists, but a terminal ingest parse/mapping failure
// never got a HistoryRecord at all, and QUEUED can't transition directly
// to FAILED through UpdateStatus/MarkFailed.
func (s *Store) CreateFailed(ctx context.Context, req model.DispatchRequest, reason string) (model.HistoryRecord, error) {
	existing, err := s.Get(ctx, req.NotificationID)
	if err == nil {
		return existing, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return model.HistoryRecord{}, err
	}

	maxAttempts := req.MaxRetryAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	_, execErr := s.db.ExecContext(ctx, `INSERT INTO notification_history
		(notification_id, correlation_id, channel, recipient, subject, content, template_name,
		 status, retry_count, max_retry_attempts, error_message, reference_id, reference_type, updated_by, last_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		req.NotificationID, req.CorrelationID, req.Channel, req.Recipient, req.Subject, req.Content,
		req.TemplateName, model.StatusFailed, maxAttempts, maxAttempts, reason, req.ReferenceID, req.ReferenceType, "dead-letter-handler")
	if execErr != nil {
		return model.HistoryRecord{}, apperr.Wrap(apperr.KindInternal, "inserting dead-lettered history record", execErr)
	}

	return s.Get(ctx, req.NotificationID)
}

// Page is a slice of history rows plus whether more rows follow it.
type Page struct {
	Records []model.HistoryRecord
	HasMore bool
}

// RecipientFilter narrows ListByRecipient to a channel and/or status, per
// spec.md §4.D's listByRecipient(recipient, filters:{Channel?,Status?},
// paging) and the GET /users/{id}/notifications?type=&status= endpoint.
// A zero value field means "no filter on this field".
type RecipientFilter struct {
	Channel model.Channel
	Status  model.NotificationStatus
}

// ListByRecipient returns recipient's history, newest first, id as tiebreak,
// offset/limit paged, narrowed by the optional filter.
func (s *Store) ListByRecipient(ctx context.Context, recipient string, filter RecipientFilter, offset, limit int) (Page, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	clause := "WHERE recipient = ?"
	args := []interface{}{recipient}
	if filter.Channel != "" {
		clause += " AND channel = ?"
		args = append(args, filter.Channel)
	}
	if filter.Status != "" {
		clause += " AND status = ?"
		args = append(args, filter.Status)
	}
	args = append(args, limit+1, offset)

	query := fmt.Sprintf(`SELECT %s FROM notification_history %s
		ORDER BY created_at DESC, notification_id DESC LIMIT ? OFFSET ?`, historyColumns, clause)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, apperr.Wrap(apperr.KindInternal, "listing history by recipient", err)
	}
	defer rows.Close()

	var out []model.HistoryRecord
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return Page{}, apperr.Wrap(apperr.KindInternal, "scanning history row", err)
		}
		out = append(out, h)
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return Page{Records: out, HasMore: hasMore}, rows.Err()
}

// ListEligibleForRetry returns every FAILED record with retryCount <
// maxRetryAttempts, for the retry scheduler to re-queue.
func (s *Store) ListEligibleForRetry(ctx context.Context, limit int) ([]model.HistoryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM notification_history
		WHERE status = ? AND retry_count < max_retry_attempts
		ORDER BY last_attempt_at ASC LIMIT ?`, historyColumns)
	rows, err := s.db.QueryContext(ctx, query, model.StatusFailed, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "listing retry-eligible history", err)
	}
	defer rows.Close()

	var out []model.HistoryRecord
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scanning history row", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListByCorrelationID returns every record sharing a correlationId, for
// tracing an ingested event to every notification it fanned out to.
func (s *Store) ListByCorrelationID(ctx context.Context, correlationID string) ([]model.HistoryRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_history WHERE correlation_id = ? ORDER BY created_at ASC`, historyColumns)
	rows, err := s.db.QueryContext(ctx, query, correlationID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "listing history by correlation id", err)
	}
	defer rows.Close()

	var out []model.HistoryRecord
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scanning history row", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeliveryStatistics summarizes counts by status, for the analytics
// aggregator and status dashboards.
type DeliveryStatistics struct {
	Total      int
	ByStatus   map[model.NotificationStatus]int
	ByChannel  map[model.Channel]int
}

// DeliveryStatistics computes aggregate counts across all history in
// [since, until).
func (s *Store) DeliveryStatistics(ctx context.Context, since, until time.Time) (DeliveryStatistics, error) {
	stats := DeliveryStatistics{ByStatus: map[model.NotificationStatus]int{}, ByChannel: map[model.Channel]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT status, channel, COUNT(*) FROM notification_history
		WHERE created_at >= ? AND created_at < ? GROUP BY status, channel`, since, until)
	if err != nil {
		return stats, apperr.Wrap(apperr.KindInternal, "computing delivery statistics", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status model.NotificationStatus
		var channel model.Channel
		var count int
		if err := rows.Scan(&status, &channel, &count); err != nil {
			return stats, apperr.Wrap(apperr.KindInternal, "scanning statistics row", err)
		}
		stats.ByStatus[status] += count
		stats.ByChannel[channel] += count
		stats.Total += count
	}
	return stats, rows.Err()
}

// ListInRange returns every history record created in [since, until), for
// the analytics aggregator to reduce over.
func (s *Store) ListInRange(ctx context.Context, since, until time.Time) ([]model.HistoryRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_history WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC`, historyColumns)
	rows, err := s.db.QueryContext(ctx, query, since, until)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "listing history in range", err)
	}
	defer rows.Close()

	var out []model.HistoryRecord
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scanning history row", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListByRecipientInRange returns recipient's history created in
// [since, until), for per-user engagement scoring.
func (s *Store) ListByRecipientInRange(ctx context.Context, recipient string, since, until time.Time) ([]model.HistoryRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_history
		WHERE recipient = ? AND created_at >= ? AND created_at < ? ORDER BY created_at ASC`, historyColumns)
	rows, err := s.db.QueryContext(ctx, query, recipient, since, until)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "listing history by recipient in range", err)
	}
	defer rows.Close()

	var out []model.HistoryRecord
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scanning history row", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteOlderThan purges history rows in a terminal state older than
// cutoff, for the retention sweep job.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_history
		WHERE created_at < ? AND status IN (?, ?, ?)`,
		cutoff, model.StatusDelivered, model.StatusRead, model.StatusCancelled)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "purging expired history", err)
	}
	return res.RowsAffected()
}
