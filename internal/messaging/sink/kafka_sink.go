package sink

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go-leave-ledger/internal/events"
)

// MessageWriter is the part of *kafkago.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

type KafkaSink struct {
	writer MessageWriter
	topic  string
}

// NewKafkaSink publishes to topic. Leave topic empty when the writer already
// carries one.
func NewKafkaSink(writer MessageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: writer, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Forward(ctx context.Context, rec events.DecisionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafkago.Message{
		Topic: s.topic,
		Key:   []byte(rec.EmployeeID),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(rec.EventType)},
			{Key: "decision_status", Value: []byte(rec.DecisionStatus)},
		},
	})
}
