package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"notifyhub/internal/logging"
)

// Manager owns one Ingestor per upstream topic and runs them concurrently
// until the context passed to Run is cancelled.
type Manager struct {
	ingestors []*Ingestor
}

// NewManager builds one Ingestor per topic in topics, all sharing the same
// routing table, dispatcher, and dead-letter producer. groupIDPrefix names
// the consumer group each ingestor joins as "<prefix>-<topic>", so a fleet
// of worker processes forms one group per topic and shares its partitions.
func NewManager(brokers []string, groupIDPrefix string, topics []string, routing Table, dispatcher Dispatcher, producer sarama.SyncProducer) (*Manager, error) {
	m := &Manager{}
	for _, topic := range topics {
		in, err := New(Config{
			Brokers: brokers,
			Topic:   topic,
			GroupID: fmt.Sprintf("%s-%s", groupIDPrefix, topic),
		}, routing, dispatcher, producer)
		if err != nil {
			m.closeAll()
			return nil, err
		}
		m.ingestors = append(m.ingestors, in)
	}
	return m, nil
}

// Run blocks, driving every ingestor concurrently, until ctx is cancelled
// or one of them returns a fatal (non-context) error.
func (m *Manager) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(m.ingestors))

	for _, in := range m.ingestors {
		wg.Add(1)
		go func(in *Ingestor) {
			defer wg.Done()
			if err := in.Run(ctx); err != nil {
				errs <- err
			}
		}(in)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	var firstErr error
	for err := range errs {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) closeAll() {
	for _, in := range m.ingestors {
		if in.group != nil {
			if err := in.group.Close(); err != nil {
				logging.Warn("ingest: error closing consumer group for topic %s: %v", in.cfg.Topic, err)
			}
		}
	}
}
