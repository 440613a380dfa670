package deadletter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/IBM/sarama"
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

type fakeSink struct {
	calls []Alert
	err   error
}

func (f *fakeSink) Alert(ctx context.Context, a Alert) error {
	f.calls = append(f.calls, a)
	return f.err
}

func buildMessage(t *testing.T, sourceTopic, reason, errMsg string, payload map[string]interface{}) *sarama.ConsumerMessage {
	t.Helper()
	payloadBytes, err := json.Marshal(payload)
	require.NoError(t, err)
	env := envelope{SourceTopic: sourceTopic, Reason: reason, Error: errMsg, Payload: payloadBytes}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Value: body}
}

func TestHandler_CriticalEventRaisesAlertAndPersists(t *testing.T) {
	h := openHistory(t)
	sink := &fakeSink{}
	handler := New(h, sink)

	msg := buildMessage(t, "security-events", "mapping_error", "no recipient", map[string]interface{}{
		"eventType": "SUSPICIOUS_LOGIN", "userId": "user-1", "correlationId": "corr-1",
	})
	handler.HandleMessage(context.Background(), msg)

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "SUSPICIOUS_LOGIN", sink.calls[0].EventType)
	assert.Equal(t, int64(1), handler.Metrics().Alerted)
	assert.Equal(t, int64(1), handler.Metrics().Persisted)

	records, err := h.ListByCorrelationID(context.Background(), "corr-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.StatusFailed, records[0].Status)
	assert.False(t, records[0].CanRetry())
}

func TestHandler_NonCriticalEventOnlyCounted(t *testing.T) {
	h := openHistory(t)
	sink := &fakeSink{}
	handler := New(h, sink)

	msg := buildMessage(t, "payment-events", "parse_error", "bad json", map[string]interface{}{
		"eventType": "PROFILE_UPDATED", "userId": "user-2",
	})
	handler.HandleMessage(context.Background(), msg)

	assert.Empty(t, sink.calls)
	assert.Equal(t, int64(1), handler.Metrics().Counted)
	assert.Equal(t, int64(1), handler.Metrics().Persisted)
}

func TestHandler_MalformedEnvelopeDoesNotPanic(t *testing.T) {
	h := openHistory(t)
	handler := New(h, &fakeSink{})

	assert.NotPanics(t, func() {
		handler.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte("not json")})
	})
	assert.Equal(t, int64(0), handler.Metrics().Persisted)
}

func TestWebhookSink_PostsJSONBody(t *testing.T) {
	var received Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Alert
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		received = body.Alert
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	err := sink.Alert(context.Background(), Alert{EventType: "PAYMENT_FAILED", Reason: "exhausted_retries"})
	require.NoError(t, err)
	assert.Equal(t, "PAYMENT_FAILED", received.EventType)
}
