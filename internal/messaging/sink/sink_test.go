package sink_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-leave-ledger/internal/events"
	"go-leave-ledger/internal/messaging/sink"
	"go.uber.org/zap"
)

func sampleRecord() events.DecisionRecord {
	return events.DecisionRecord{
		LeaveEvent: events.LeaveEvent{
			RequestID:  "R1",
			EmployeeID: "E001",
			EventType:  events.EventTypeRequestApproved,
			StartDate:  "2025-03-10",
			EndDate:    "2025-03-11",
			Days:       2,
		},
		DecisionStatus: "APPROVED",
		ProcessedAt:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

type funcSink struct {
	name string
	fn   func(ctx context.Context, rec events.DecisionRecord) error
}

func (s funcSink) Name() string { return s.name }
func (s funcSink) Forward(ctx context.Context, rec events.DecisionRecord) error {
	return s.fn(ctx, rec)
}

func TestKafkaSink_Forward(t *testing.T) {
	w := &fakeWriter{}
	s := sink.NewKafkaSink(w, events.LeaveDecisionsTopic)

	require.NoError(t, s.Forward(context.Background(), sampleRecord()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, events.LeaveDecisionsTopic, msg.Topic)
	assert.Equal(t, "E001", string(msg.Key))
	assert.Equal(t, []kafkago.Header{
		{Key: "event_type", Value: []byte("request_approved")},
		{Key: "decision_status", Value: []byte("APPROVED")},
	}, msg.Headers)

	var got events.DecisionRecord
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, sampleRecord(), got)
}

func TestRedisStreamSink_Forward(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := sink.NewRedisStreamSink(db, "")
	rec := sampleRecord()
	payload, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: events.LeaveDecisionStream,
		MaxLen: sink.DefaultStreamMaxLen,
		Approx: true,
		Values: []any{
			"request_id", "R1",
			"employee_id", "E001",
			"decision_status", "APPROVED",
			"payload", string(payload),
		},
	}).SetVal("1-0")

	require.NoError(t, s.Forward(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStreamSink_Error(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := sink.NewRedisStreamSink(db, "custom")
	rec := sampleRecord()
	payload, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "custom",
		MaxLen: sink.DefaultStreamMaxLen,
		Approx: true,
		Values: []any{
			"request_id", "R1",
			"employee_id", "E001",
			"decision_status", "APPROVED",
			"payload", string(payload),
		},
	}).SetErr(errors.New("READONLY"))

	assert.EqualError(t, s.Forward(context.Background(), rec), "READONLY")
}

func TestFanout_IsolatesFailures(t *testing.T) {
	good := &fakeWriter{}
	failing := funcSink{name: "broken", fn: func(ctx context.Context, rec events.DecisionRecord) error {
		return errors.New("down")
	}}
	slow := funcSink{name: "slow", fn: func(ctx context.Context, rec events.DecisionRecord) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	f := sink.NewFanout(20*time.Millisecond, zap.NewNop(), failing, slow, sink.NewKafkaSink(good, ""))
	start := time.Now()
	err := f.Forward(context.Background(), sampleRecord())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: down")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, good.msgs, 1)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFanout_NoSinks(t *testing.T) {
	f := sink.NewFanout(0, nil)
	assert.NoError(t, f.Forward(context.Background(), sampleRecord()))
}
