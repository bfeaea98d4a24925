package sink

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go-leave-ledger/internal/events"
)

const DefaultStreamMaxLen = 10000

type RedisStreamSink struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisStreamSink(rdb redis.Cmdable, stream string) *RedisStreamSink {
	if stream == "" {
		stream = events.LeaveDecisionStream
	}
	return &RedisStreamSink{rdb: rdb, stream: stream, maxLen: DefaultStreamMaxLen}
}

func (s *RedisStreamSink) Name() string { return "redis_stream" }

// Forward appends the record with approximate trimming to maxLen entries.
func (s *RedisStreamSink) Forward(ctx context.Context, rec events.DecisionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: []any{
			"request_id", rec.RequestID,
			"employee_id", rec.EmployeeID,
			"decision_status", rec.DecisionStatus,
			"payload", string(payload),
		},
	}).Err()
}
