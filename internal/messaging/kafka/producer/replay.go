package producer

import (
	"context"
	"time"

	"go-leave-ledger/internal/events"
	"go.uber.org/zap"
)

const DefaultLinger = time.Second

// Replay publishes evs in file order, one every linger. It stops at the
// first write error so order is never broken, and returns how many were sent.
func Replay(
	ctx context.Context,
	writer MessageWriter,
	topic string,
	evs []events.LeaveEvent,
	linger time.Duration,
	logger *zap.Logger,
) (int, error) {
	if linger <= 0 {
		linger = DefaultLinger
	}

	log := logger.Named("kafka.producer.replay")
	log.Info("replay started", zap.Int("events", len(evs)), zap.Duration("linger", linger))

	ticker := time.NewTicker(linger)
	defer ticker.Stop()

	sent := 0
	for i, ev := range evs {
		if i > 0 {
			select {
			case <-ctx.Done():
				log.Info("replay stopped", zap.Int("sent", sent))
				return sent, ctx.Err()
			case <-ticker.C:
			}
		}

		if err := publishEvent(ctx, writer, topic, ev); err != nil {
			log.Error("publish leave event failed",
				zap.String("request_id", ev.RequestID),
				zap.String("event_type", ev.EventType),
				zap.Error(err),
			)
			return sent, err
		}
		sent++
		log.Info("leave event sent",
			zap.String("request_id", ev.RequestID),
			zap.String("employee_id", ev.EmployeeID),
			zap.String("event_type", ev.EventType),
		)
	}

	log.Info("replay finished", zap.Int("sent", sent))
	return sent, nil
}
