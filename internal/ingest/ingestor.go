package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"notifyhub/internal/logging"
	"notifyhub/internal/model"
)

// Dispatcher is the subset of *dispatcher.Dispatcher every ingestor needs.
// Declaring it locally instead of importing the dispatcher package keeps
// ingest a leaf consumer of the dispatch contract, not of its internals.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.DispatchRequest) error
}

// Config configures one topic's consumer group.
type Config struct {
	Brokers           []string
	Topic             string
	GroupID           string
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
}

// Ingestor is one sarama consumer-group member for a single topic,
// grounded on the teacher pack's Kafka notification consumer: Setup
// closes a readiness gate, ConsumeClaim drains the claim's Messages()
// channel until the session context ends, and a single failed record
// never stops the loop.
type Ingestor struct {
	cfg           Config
	routing       Table
	acceptedTypes map[string]bool
	dispatcher    Dispatcher
	producer      sarama.SyncProducer // nil disables dead-lettering of terminal parse/mapping failures
	group         sarama.ConsumerGroup
	metrics       Metrics
	ready         chan struct{}
}

// New builds an Ingestor. producer may be nil, in which case terminal
// parse/mapping failures are only logged and counted, never forwarded.
func New(cfg Config, routing Table, dispatcher Dispatcher, producer sarama.SyncProducer) (*Ingestor, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	if cfg.SessionTimeout > 0 {
		saramaCfg.Consumer.Group.Session.Timeout = cfg.SessionTimeout
	}
	if cfg.HeartbeatInterval > 0 {
		saramaCfg.Consumer.Group.Heartbeat.Interval = cfg.HeartbeatInterval
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("ingest: creating consumer group for topic %s: %w", cfg.Topic, err)
	}

	var accepted map[string]bool
	if types, ok := TopicEventTypes[cfg.Topic]; ok {
		accepted = make(map[string]bool, len(types))
		for _, t := range types {
			accepted[t] = true
		}
	}

	return &Ingestor{
		cfg:           cfg,
		routing:       routing,
		acceptedTypes: accepted,
		dispatcher:    dispatcher,
		producer:      producer,
		group:         group,
		ready:         make(chan struct{}),
	}, nil
}

// Run drives the consumer group until ctx is cancelled, restarting Consume
// after transient errors the way a rebalance or broker blip would require.
func (in *Ingestor) Run(ctx context.Context) error {
	go func() {
		for err := range in.group.Errors() {
			logging.Warn("ingest[%s]: consumer group error: %v", in.cfg.Topic, err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return in.group.Close()
		default:
		}

		if err := in.group.Consume(ctx, []string{in.cfg.Topic}, in); err != nil {
			if ctx.Err() != nil {
				return in.group.Close()
			}
			logging.Warn("ingest[%s]: consume error: %v", in.cfg.Topic, err)
			time.Sleep(time.Second)
		}
	}
}

// Metrics returns a snapshot of this ingestor's counters.
func (in *Ingestor) Metrics() Snapshot { return in.metrics.Snapshot() }

func (in *Ingestor) Setup(sarama.ConsumerGroupSession) error {
	select {
	case <-in.ready:
	default:
		close(in.ready)
	}
	return nil
}

func (in *Ingestor) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (in *Ingestor) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			in.handle(session.Context(), msg)
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// handle implements spec.md §4.G's five-step flow. Parse, mapping, and
// template-resolution failures are logged and counted but never returned:
// the caller always commits the offset (at-least-once by topic).
func (in *Ingestor) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	in.metrics.incConsumed()

	var peek eventEnvelope
	if err := json.Unmarshal(msg.Value, &peek); err != nil {
		in.metrics.incParseErrors()
		logging.Warn("ingest[%s]: malformed record at offset %d: %v", in.cfg.Topic, msg.Offset, err)
		in.deadLetter(ctx, msg, "parse_error", err)
		return
	}

	if in.acceptedTypes != nil && !in.acceptedTypes[peek.EventType] {
		in.metrics.incFiltered()
		return
	}

	event, err := decodeRawEvent(msg.Value)
	if err != nil {
		in.metrics.incParseErrors()
		logging.Warn("ingest[%s]: failed to decode event %s: %v", in.cfg.Topic, peek.EventType, err)
		in.deadLetter(ctx, msg, "parse_error", err)
		return
	}

	route, found := in.routing[event.EventType]
	correlationID := correlationIDFromHeaders(msg.Headers)

	req, err := buildDispatchRequest(route, found, event, correlationID)
	if err != nil {
		in.metrics.incMappingErrors()
		logging.Warn("ingest[%s]: mapping failure for event %s: %v", in.cfg.Topic, event.EventType, err)
		in.deadLetter(ctx, msg, "mapping_error", err)
		return
	}

	if err := in.dispatcher.Dispatch(ctx, req); err != nil {
		in.metrics.incDispatchErrs()
		logging.Warn("ingest[%s]: dispatch failed for notification %s: %v", in.cfg.Topic, req.NotificationID, err)
		return
	}
	in.metrics.incDispatched()
}

func correlationIDFromHeaders(headers []*sarama.RecordHeader) string {
	for _, h := range headers {
		if string(h.Key) == "correlationId" {
			return string(h.Value)
		}
	}
	return ""
}

// deadLetter forwards the original record to <topic>.dlq, per spec.md's
// "all ingestors share one dead-letter path" (§4.G/§4.J). A nil producer
// (dead-lettering disabled) or a publish failure both just log; offset
// commit proceeds either way.
func (in *Ingestor) deadLetter(ctx context.Context, msg *sarama.ConsumerMessage, reason string, cause error) {
	if in.producer == nil {
		return
	}
	envelope := map[string]interface{}{
		"sourceTopic": in.cfg.Topic,
		"reason":      reason,
		"error":       cause.Error(),
		"payload":     json.RawMessage(msg.Value),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("ingest[%s]: failed to marshal dead-letter envelope: %v", in.cfg.Topic, err)
		return
	}
	_, _, err = in.producer.SendMessage(&sarama.ProducerMessage{
		Topic: in.cfg.Topic + ".dlq",
		Key:   sarama.StringEncoder(string(msg.Key)),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		logging.Error("ingest[%s]: failed to publish to dead-letter topic: %v", in.cfg.Topic, err)
	}
}
