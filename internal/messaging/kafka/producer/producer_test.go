package producer_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-leave-ledger/internal/events"
	"go-leave-ledger/internal/messaging/kafka/producer"
	"go.uber.org/zap"
)

const sampleCSV = `request_id,employee_id,leave_type,start_date,end_date,days,event_type,status,created_at,approved_at
E001-1,E001,Vacation,2025-01-06,2025-01-08,3,request_created,PENDING,2025-01-01T09:00:00.000001,
E001-1,E001,Vacation,2025-01-06,2025-01-08,3.0,request_approved,APPROVED,2025-01-01T09:00:00.000001,2025-01-02T10:00:00
E002-1,E002,Sick,2025-01-07,2025-01-07,1,request_created,PENDING,nan,
`

func TestReadCSV(t *testing.T) {
	evs, err := producer.ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, evs, 3)

	assert.Equal(t, "E001-1", evs[0].RequestID)
	assert.Equal(t, events.EventTypeRequestCreated, evs[0].EventType)
	assert.Equal(t, 3, evs[0].Days)
	require.NotNil(t, evs[0].CreatedAt)
	assert.Equal(t, "2025-01-01T09:00:00.000001", *evs[0].CreatedAt)
	assert.Nil(t, evs[0].ApprovedAt)

	assert.Equal(t, 3, evs[1].Days)
	require.NotNil(t, evs[1].ApprovedAt)

	assert.Equal(t, "Sick", evs[2].LeaveType)
	assert.Nil(t, evs[2].CreatedAt)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := producer.ReadCSV(strings.NewReader("employee_id,event_type\nE001,request_created\n"))
	assert.ErrorContains(t, err, "request_id")

	_, err = producer.ReadCSV(strings.NewReader("request_id,employee_id,event_type,days\nR1,E001,request_created,2.5\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = producer.ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestLoadFile_JSONLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	body := `{"request_id":"R1","employee_id":"E001","event_type":"request_created","start_date":"2025-01-06","end_date":"2025-01-06","days":1}

{"request_id":"R1","employee_id":"E001","event_type":"request_approved","start_date":"2025-01-06","end_date":"2025-01-06","days":1,"approved_at":"2025-01-02T10:00:00"}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	evs, err := producer.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, events.EventTypeRequestApproved, evs[1].EventType)

	bad := filepath.Join(dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("{}\n{oops\n"), 0o600))
	_, err = producer.LoadFile(bad)
	assert.ErrorContains(t, err, "line 2")

	csvPath := filepath.Join(dir, "events.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte(sampleCSV), 0o600))
	evs, err = producer.LoadFile(csvPath)
	require.NoError(t, err)
	assert.Len(t, evs, 3)
}

type fakeWriter struct {
	mu    sync.Mutex
	msgs  []kafkago.Message
	at    []time.Time
	failN int
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failN > 0 && len(w.msgs) == w.failN {
		return errors.New("broker gone")
	}
	w.msgs = append(w.msgs, msgs...)
	w.at = append(w.at, time.Now())
	return nil
}

func TestReplay_PreservesOrderAndPacing(t *testing.T) {
	evs, err := producer.ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	w := &fakeWriter{}
	linger := 20 * time.Millisecond

	sent, err := producer.Replay(context.Background(), w, events.LeaveEventsTopic, evs, linger, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	require.Len(t, w.msgs, 3)

	for i, msg := range w.msgs {
		assert.Equal(t, events.LeaveEventsTopic, msg.Topic)
		assert.Equal(t, evs[i].EmployeeID, string(msg.Key))
		assert.Equal(t, []kafkago.Header{{Key: "event_type", Value: []byte(evs[i].EventType)}}, msg.Headers)
		var got events.LeaveEvent
		require.NoError(t, json.Unmarshal(msg.Value, &got))
		assert.Equal(t, evs[i], got)
	}
	assert.GreaterOrEqual(t, w.at[2].Sub(w.at[0]), linger)
}

func TestReplay_StopsOnWriteError(t *testing.T) {
	evs, err := producer.ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	w := &fakeWriter{failN: 1}

	sent, err := producer.Replay(context.Background(), w, "", evs, time.Millisecond, zap.NewNop())
	assert.EqualError(t, err, "broker gone")
	assert.Equal(t, 1, sent)
}

func TestReplay_Cancelled(t *testing.T) {
	evs, err := producer.ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	w := &fakeWriter{}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	sent, err := producer.Replay(ctx, w, "", evs, time.Hour, zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sent)
}
