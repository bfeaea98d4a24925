package producer

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go-leave-ledger/internal/events"
)

// MessageWriter is the part of *kafkago.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

func publishEvent(ctx context.Context, writer MessageWriter, topic string, event events.LeaveEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(event.EmployeeID),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	return writer.WriteMessages(ctx, msg)
}
