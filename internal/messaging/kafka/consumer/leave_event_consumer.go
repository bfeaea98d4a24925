package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	kafkago "github.com/segmentio/kafka-go"
	"go-leave-ledger/internal/events"
	"go-leave-ledger/internal/ingest"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafkago.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
}

type EventProcessor interface {
	Process(ctx context.Context, ev events.LeaveEvent) (ingest.Result, error)
}

// Options tune redelivery of a retryable event. The same message is retried
// in place so per-employee order is kept.
type Options struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

func DefaultOptions() Options {
	return Options{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsed:      2 * time.Minute,
	}
}

// ErrGaveUp is returned when an event kept failing past MaxElapsed. The
// message stays uncommitted and is redelivered to the next group member.
var ErrGaveUp = errors.New("leave event retries exhausted")

// ConsumeLeaveEvents applies each message and commits its offset only once
// the state change is durable. It returns nil when ctx is cancelled.
func ConsumeLeaveEvents(
	ctx context.Context,
	reader MessageReader,
	processor EventProcessor,
	logger *zap.Logger,
	opts Options,
) error {
	log := logger.Named("kafka.consumer.leave_events")
	log.Info("leave event consumer started")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("leave event consumer stopped")
				return nil
			}
			log.Error("fetch leave event failed", zap.Error(err))
			continue
		}

		ev, err := ingest.Decode(msg.Value)
		if err != nil {
			log.Error("decode leave event failed",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			commit(ctx, reader, msg, log)
			continue
		}

		res, err := processWithRetry(ctx, processor, ev, opts)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("leave event consumer stopped")
				return nil
			}
			log.Error("leave event left uncommitted",
				zap.String("request_id", ev.RequestID),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			return fmt.Errorf("%w: request %s: %w", ErrGaveUp, ev.RequestID, err)
		}

		commit(ctx, reader, msg, log)
		if !res.Skipped {
			log.Debug("leave event committed",
				zap.String("request_id", ev.RequestID),
				zap.String("decision_status", res.Record.DecisionStatus),
				zap.Int64("offset", msg.Offset),
			)
		}
	}
}

func processWithRetry(ctx context.Context, processor EventProcessor, ev events.LeaveEvent, opts Options) (ingest.Result, error) {
	b := backoff.NewExponentialBackOff()
	if opts.InitialInterval > 0 {
		b.InitialInterval = opts.InitialInterval
	}
	if opts.MaxInterval > 0 {
		b.MaxInterval = opts.MaxInterval
	}
	retryOpts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if opts.MaxElapsed > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxElapsedTime(opts.MaxElapsed))
	}

	return backoff.Retry(ctx, func() (ingest.Result, error) {
		res, err := processor.Process(ctx, ev)
		if err != nil && !errors.Is(err, ingest.ErrRetryable) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, retryOpts...)
}

func commit(ctx context.Context, reader MessageReader, msg kafkago.Message, log *zap.Logger) {
	if err := reader.CommitMessages(ctx, msg); err != nil {
		log.Error("commit leave event failed", zap.Int64("offset", msg.Offset), zap.Error(err))
	}
}
