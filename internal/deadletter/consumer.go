package deadletter

import (
	"context"
	"time"

	"github.com/IBM/sarama"

	"notifyhub/internal/logging"
)

// Consumer is a sarama consumer-group member that drains a set of
// dead-letter topics into a Handler. Every ingestor's topic gets its own
// "<topic>.dlq" sibling; Consumer subscribes to all of them under one
// consumer group so a single dead-letter handler fleet can scale
// independently of the main ingestors.
type Consumer struct {
	handler *Handler
	topics  []string
	group   sarama.ConsumerGroup
}

// DLQTopicsFor derives the dead-letter topic names for a set of source
// topics, matching the ".dlq" suffix ingest.Ingestor publishes to.
func DLQTopicsFor(sourceTopics []string) []string {
	out := make([]string, len(sourceTopics))
	for i, t := range sourceTopics {
		out[i] = t + ".dlq"
	}
	return out
}

// NewConsumer builds a Consumer for the given dead-letter topics.
func NewConsumer(brokers []string, groupID string, topics []string, handler *Handler) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest // dead letters must never be silently skipped on first boot

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{handler: handler, topics: topics, group: group}, nil
}

// Run drives the consumer group until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			logging.Warn("deadletter: consumer group error: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return c.group.Close()
		default:
		}
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			if ctx.Err() != nil {
				return c.group.Close()
			}
			logging.Warn("deadletter: consume error: %v", err)
			time.Sleep(time.Second)
		}
	}
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.handler.HandleMessage(session.Context(), msg)
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
