package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"notifyhub/internal/appwire"
	"notifyhub/internal/config"
	"notifyhub/internal/deadletter"
	"notifyhub/internal/ingest"
	"notifyhub/internal/logging"
)

// Build-time variables (set by ldflags).
var (
	Version   = "dev"
	GitCommit = "unknown"
)

const (
	exitOK = iota
	exitConfig
	exitDependency
)

func main() {
	os.Exit(run())
}

func run() int {
	logging.Info("notifyhub worker %s (%s) starting", Version, GitCommit)

	cfgPath := os.Getenv("NOTIFYHUB_CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "config/notifyhub.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Error("config: %v", err)
		return exitConfig
	}

	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "notifyhub-worker-" + GitCommit
	}

	app, err := appwire.Build(cfg, instanceID)
	if err != nil {
		logging.Error("appwire: %v", err)
		return exitDependency
	}
	defer app.DB.Close()

	producerCfg := sarama.NewConfig()
	producerCfg.Producer.Return.Successes = true
	producerCfg.Producer.RequiredAcks = sarama.WaitForAll
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, producerCfg)
	if err != nil {
		logging.Error("kafka: building dead-letter producer: %v", err)
		return exitDependency
	}
	defer producer.Close()

	routing, err := ingest.LoadRoutingFile(cfg.Kafka.RoutingFile)
	if err != nil {
		logging.Warn("ingest: %v, falling back to built-in routing table", err)
		routing = ingest.DefaultTable()
	}

	topics := ingest.DefaultTopics()
	manager, err := ingest.NewManager(cfg.Kafka.Brokers, cfg.Kafka.GroupIDPrefix, topics, routing, app.Dispatcher, producer)
	if err != nil {
		logging.Error("ingest: building manager: %v", err)
		return exitDependency
	}

	var sink deadletter.AlertSink = deadletter.NoopSink{}
	if url := os.Getenv("DLQ_ALERT_WEBHOOK_URL"); url != "" {
		sink = deadletter.NewWebhookSink(url)
	}
	dlqHandler := deadletter.New(app.History, sink)
	dlqConsumer, err := deadletter.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupIDPrefix+"-dlq", deadletter.DLQTopicsFor(topics), dlqHandler)
	if err != nil {
		logging.Error("deadletter: building consumer: %v", err)
		return exitDependency
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.Limiter.StartJanitor(ctx, 5*time.Minute)

	errs := make(chan error, 2)
	go func() { errs <- manager.Run(ctx) }()
	go func() { errs <- dlqConsumer.Run(ctx) }()

	remaining := 2
	select {
	case <-ctx.Done():
		logging.Info("worker: shutdown signal received")
	case err := <-errs:
		remaining--
		if err != nil {
			logging.Error("worker: fatal consumer error: %v", err)
		}
		stop()
	}

	shutdownDeadline := time.After(15 * time.Second)
	for i := 0; i < remaining; i++ {
		select {
		case <-errs:
		case <-shutdownDeadline:
			logging.Warn("worker: shutdown timed out waiting for consumers")
			return exitOK
		}
	}

	return exitOK
}
