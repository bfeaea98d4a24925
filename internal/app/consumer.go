package app

import (
	"context"
	"os/signal"
	"syscall"

	kafkago "github.com/segmentio/kafka-go"
	"go-leave-ledger/internal/config"
	"go-leave-ledger/internal/ingest"
	"go-leave-ledger/internal/messaging/kafka/consumer"
	"go-leave-ledger/internal/messaging/sink"
	"go-leave-ledger/internal/shared/connection"
	"go.uber.org/zap"
)

// RunConsumer applies the leave event topic until SIGINT/SIGTERM.
func RunConsumer(cfg config.Config) error {
	logger := zap.L().Named("app.consumer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in, err := OpenInfra(ctx, cfg)
	if err != nil {
		return err
	}
	defer in.Close()

	leaveService, err := newLeaveService(ctx, cfg, in)
	if err != nil {
		return err
	}

	if err := connection.ConnectKafkaWithRetry(cfg.Kafka.Brokers, cfg.ConnectRetries); err != nil {
		return err
	}

	var sinks []sink.Sink
	if cfg.HasSink("kafka") {
		writer := &kafkago.Writer{
			Addr:                   kafkago.TCP(cfg.Kafka.Brokers...),
			Topic:                  cfg.Kafka.DecisionTopic,
			Balancer:               &kafkago.Hash{},
			AllowAutoTopicCreation: true,
		}
		defer writer.Close()
		sinks = append(sinks, sink.NewKafkaSink(writer, ""))
	}
	if cfg.HasSink("redis") && in.Redis != nil {
		sinks = append(sinks, sink.NewRedisStreamSink(in.Redis, cfg.RedisDecisionStream))
	}
	fanout := sink.NewFanout(sink.DefaultTimeout, logger, sinks...)

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topic,
		GroupID:        cfg.Kafka.GroupID,
		CommitInterval: 0,
		StartOffset:    kafkago.FirstOffset,
	})
	defer reader.Close()

	processor := ingest.NewProcessor(leaveService, fanout)
	logger.Info("consumer starting",
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group_id", cfg.Kafka.GroupID),
		zap.Int("sinks", len(sinks)),
	)

	err = consumer.ConsumeLeaveEvents(ctx, reader, processor, logger, consumer.DefaultOptions())
	logger.Info("consumer shutting down")
	return err
}
