package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go-leave-ledger/internal/domain"
	"go-leave-ledger/internal/storage"
)

// The counter document is rewritten inside the script so the guard and the
// increment happen in one atomic step. Scripts return -1 when the counter
// does not exist.
var (
	acquireScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return -1
end
local rec = cjson.decode(raw)
if rec.on_leave >= tonumber(ARGV[1]) then
  return 0
end
rec.on_leave = rec.on_leave + 1
rec.updated_at = ARGV[2]
redis.call('SET', KEYS[1], cjson.encode(rec))
return 1
`)

	releaseScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return -1
end
local rec = cjson.decode(raw)
if rec.on_leave > 0 then
  rec.on_leave = rec.on_leave - 1
end
rec.updated_at = ARGV[1]
redis.call('SET', KEYS[1], cjson.encode(rec))
return rec.on_leave
`)
)

type counter struct {
	rdb redis.UniversalClient
	now func() time.Time
}

func counterKey() string {
	return ObjectKey(storage.CollectionCapacity, domain.CapacityCounterName)
}

func (c *counter) Load(ctx context.Context) (domain.CapacityCounter, error) {
	var rec domain.CapacityCounter
	raw, err := c.rdb.Get(ctx, counterKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, storage.ErrNotFound
	}
	if err != nil {
		return rec, storage.Wrap("load", storage.CollectionCapacity, err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, storage.Wrap("load", storage.CollectionCapacity, err)
	}
	return rec, nil
}

func (c *counter) Init(ctx context.Context, onLeave int) (bool, error) {
	raw, err := json.Marshal(domain.CapacityCounter{
		Name:      domain.CapacityCounterName,
		OnLeave:   onLeave,
		UpdatedAt: c.now(),
	})
	if err != nil {
		return false, storage.Wrap("init", storage.CollectionCapacity, err)
	}
	created, err := c.rdb.SetNX(ctx, counterKey(), raw, 0).Result()
	if err != nil {
		return false, storage.Wrap("init", storage.CollectionCapacity, err)
	}
	return created, nil
}

func (c *counter) Acquire(ctx context.Context, limit int) (bool, error) {
	res, err := acquireScript.Run(ctx, c.rdb, []string{counterKey()}, limit, c.stamp()).Int()
	if err != nil {
		return false, storage.Wrap("acquire", storage.CollectionCapacity, err)
	}
	switch res {
	case -1:
		return false, storage.ErrNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func (c *counter) Release(ctx context.Context) error {
	res, err := releaseScript.Run(ctx, c.rdb, []string{counterKey()}, c.stamp()).Int()
	if err != nil {
		return storage.Wrap("release", storage.CollectionCapacity, err)
	}
	if res == -1 {
		return storage.ErrNotFound
	}
	return nil
}

func (c *counter) stamp() string {
	return c.now().Format(time.RFC3339Nano)
}
