package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifyhub/internal/model"
)

type fakeDispatcher struct {
	calls []model.DispatchRequest
	err   error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req model.DispatchRequest) error {
	f.calls = append(f.calls, req)
	return f.err
}

func newTestIngestor(topic string, dispatcher Dispatcher) *Ingestor {
	return &Ingestor{
		cfg:           Config{Topic: topic},
		routing:       DefaultTable(),
		acceptedTypes: acceptedSet(topic),
		dispatcher:    dispatcher,
	}
}

func acceptedSet(topic string) map[string]bool {
	types, ok := TopicEventTypes[topic]
	if !ok {
		return nil
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func TestIngestor_DispatchesRoutedEvent(t *testing.T) {
	d := &fakeDispatcher{}
	in := newTestIngestor("payment-events", d)

	payload, _ := json.Marshal(map[string]interface{}{
		"eventType": "PAYMENT_FAILED",
		"userId":    "user-1",
		"email":     "user1@example.com",
		"reason":    "insufficient funds",
	})
	in.handle(context.Background(), &sarama.ConsumerMessage{Value: payload})

	require.Len(t, d.calls, 1)
	req := d.calls[0]
	assert.Equal(t, "payment_failed_alert", req.TemplateName)
	assert.Equal(t, model.PriorityHigh, req.Priority)
	assert.Equal(t, model.CategoryAccount, req.Category)
	assert.Equal(t, "user1@example.com", req.Recipient)
	assert.Equal(t, int64(1), in.metrics.Snapshot().Dispatched)
}

func TestIngestor_FiltersEventTypeNotOwnedByTopic(t *testing.T) {
	d := &fakeDispatcher{}
	in := newTestIngestor("payment-events", d)

	payload, _ := json.Marshal(map[string]interface{}{"eventType": "ORDER_PLACED", "userId": "user-1"})
	in.handle(context.Background(), &sarama.ConsumerMessage{Value: payload})

	assert.Empty(t, d.calls)
	assert.Equal(t, int64(1), in.metrics.Snapshot().Filtered)
}

func TestIngestor_MalformedPayloadIsCountedNotFatal(t *testing.T) {
	d := &fakeDispatcher{}
	in := newTestIngestor("payment-events", d)

	in.handle(context.Background(), &sarama.ConsumerMessage{Value: []byte("not json")})

	assert.Empty(t, d.calls)
	assert.Equal(t, int64(1), in.metrics.Snapshot().ParseErrors)
}

func TestIngestor_MissingRecipientIsMappingError(t *testing.T) {
	d := &fakeDispatcher{}
	in := newTestIngestor("security-events", d)

	payload, _ := json.Marshal(map[string]interface{}{"eventType": "SUSPICIOUS_LOGIN"})
	in.handle(context.Background(), &sarama.ConsumerMessage{Value: payload})

	assert.Empty(t, d.calls)
	assert.Equal(t, int64(1), in.metrics.Snapshot().MappingErrors)
}

func TestIngestor_UnroutedEventTypeStillDispatchesWithDefaultFormatter(t *testing.T) {
	d := &fakeDispatcher{}
	in := newTestIngestor("trading-events", d)
	in.acceptedTypes = nil // simulate a topic with no TopicEventTypes entry: accept everything

	payload, _ := json.Marshal(map[string]interface{}{
		"eventType": "SOME_UNLISTED_EVENT",
		"userId":    "user-9",
		"email":     "user9@example.com",
	})
	in.handle(context.Background(), &sarama.ConsumerMessage{Value: payload})

	require.Len(t, d.calls, 1)
	assert.Empty(t, d.calls[0].TemplateName)
	assert.Equal(t, "Some unlisted event notification", d.calls[0].Content)
}

func TestDecodeRawEvent_ExtractsKnownFields(t *testing.T) {
	payload, _ := json.Marshal(map[string]interface{}{
		"eventType": "ORDER_FILLED",
		"userId":    "user-2",
		"orderId":   "ord-123",
	})
	ev, err := decodeRawEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "ORDER_FILLED", ev.EventType)
	assert.Equal(t, "user-2", ev.UserID)
	assert.Equal(t, "ord-123", ev.field("orderId"))
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "Order placed", humanize("ORDER_PLACED"))
	assert.Equal(t, "Suspicious login", humanize("SUSPICIOUS_LOGIN"))
}
