package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sync/atomic"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"notifyhub/internal/history"
	"notifyhub/internal/logging"
	"notifyhub/internal/model"
)

// criticalEventTypes are the eventTypes spec.md §4.J names as worth paging
// an operator for; everything else is merely counted.
var criticalEventTypes = map[string]bool{
	"ORDER_REJECTED":   true,
	"SUSPICIOUS_LOGIN": true,
	"PAYMENT_FAILED":   true,
}

// envelope is the shape ingest.Ingestor.deadLetter publishes. Handler
// tolerates a missing eventType (a truly malformed payload still gets
// persisted and counted, just never classified as critical).
type envelope struct {
	SourceTopic string          `json:"sourceTopic"`
	Reason      string          `json:"reason"`
	Error       string          `json:"error"`
	Payload     json.RawMessage `json:"payload"`
}

type payloadPeek struct {
	EventType     string `json:"eventType"`
	UserID        string `json:"userId"`
	Email         string `json:"email"`
	CorrelationID string `json:"correlationId"`
}

// Handler is the component J contract: one consumer group member for a
// dead-letter topic.
type Handler struct {
	history *history.Store
	sink    AlertSink
	metrics Metrics
}

// Metrics counts dead-lettered messages by disposition, updated
// concurrently from every partition's ConsumeClaim goroutine.
type Metrics struct {
	persisted int64
	alerted   int64
	counted   int64
}

// MetricsSnapshot is a point-in-time copy of Handler's counters.
type MetricsSnapshot struct {
	Persisted int64
	Alerted   int64
	Counted   int64
}

// Metrics returns the current counter values.
func (h *Handler) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Persisted: atomic.LoadInt64(&h.metrics.persisted),
		Alerted:   atomic.LoadInt64(&h.metrics.alerted),
		Counted:   atomic.LoadInt64(&h.metrics.counted),
	}
}

// New builds a Handler. sink may be nil to disable alerting entirely
// (every critical event is still persisted and counted).
func New(h *history.Store, sink AlertSink) *Handler {
	return &Handler{history: h, sink: sink}
}

// HandleMessage implements spec.md §4.J's three steps for one dead-lettered
// record. It never returns an error that should stop offset commit — a
// malformed dead-letter payload is itself logged and dropped, since there
// is no further queue to forward it to.
func (h *Handler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) {
	var env envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		logging.Error("deadletter: malformed dead-letter envelope at offset %d: %v", msg.Offset, err)
		return
	}

	var peek payloadPeek
	_ = json.Unmarshal(env.Payload, &peek)

	logging.Error("deadletter: terminal failure sourceTopic=%s reason=%s correlationId=%s error=%s",
		env.SourceTopic, env.Reason, peek.CorrelationID, env.Error)

	notificationID := uuid.NewString()
	recipient := peek.Email
	if recipient == "" {
		recipient = peek.UserID
	}

	req := model.DispatchRequest{
		NotificationID: notificationID,
		CorrelationID:  peek.CorrelationID,
		Channel:        model.ChannelEmail,
		Recipient:      recipient,
		Subject:        fmt.Sprintf("dead-lettered event %s", peek.EventType),
		Content:        env.Error,
		ReferenceType:  "dlq",
		ReferenceID:    env.SourceTopic,
	}
	if _, err := h.history.CreateFailed(ctx, req, fmt.Sprintf("%s: %s", env.Reason, env.Error)); err != nil {
		logging.Error("deadletter: failed to persist dead-lettered record: %v", err)
	} else {
		atomic.AddInt64(&h.metrics.persisted, 1)
	}

	if criticalEventTypes[peek.EventType] {
		h.alert(ctx, peek, env)
	} else {
		atomic.AddInt64(&h.metrics.counted, 1)
	}
}

func (h *Handler) alert(ctx context.Context, peek payloadPeek, env envelope) {
	if h.sink == nil {
		atomic.AddInt64(&h.metrics.counted, 1)
		return
	}
	alert := Alert{
		EventType:     peek.EventType,
		SourceTopic:   env.SourceTopic,
		Reason:        env.Reason,
		ErrorMessage:  env.Error,
		CorrelationID: peek.CorrelationID,
		OccurredAt:    time.Now(),
	}
	if err := h.sink.Alert(ctx, alert); err != nil {
		logging.Error("deadletter: failed to raise alert for critical event %s: %v", peek.EventType, err)
		return
	}
	atomic.AddInt64(&h.metrics.alerted, 1)
}
