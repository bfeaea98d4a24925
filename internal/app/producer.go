package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go-leave-ledger/internal/config"
	"go-leave-ledger/internal/messaging/kafka/producer"
	"go-leave-ledger/internal/shared/connection"
	"go.uber.org/zap"
)

// RunProducer replays the event log at path onto the leave event topic.
func RunProducer(cfg config.Config, path string, linger time.Duration) error {
	logger := zap.L().Named("app.producer")

	evs, err := producer.LoadFile(path)
	if err != nil {
		return err
	}
	logger.Info("event log loaded", zap.String("file", path), zap.Int("events", len(evs)))

	if err := connection.ConnectKafkaWithRetry(cfg.Kafka.Brokers, cfg.ConnectRetries); err != nil {
		return err
	}
	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Kafka.Brokers...),
		Topic:                  cfg.Kafka.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sent, err := producer.Replay(ctx, writer, "", evs, linger, logger)
	if errors.Is(err, context.Canceled) {
		logger.Info("replay interrupted", zap.Int("sent", sent), zap.Int("total", len(evs)))
		return nil
	}
	return err
}
