// Package redisstore emulates an object store on redis: every record is a
// JSON document at "<Collection>/<key>.json".
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go-leave-ledger/internal/domain"
	"go-leave-ledger/internal/storage"
)

const scanBatch = 100

type Store struct {
	rdb       redis.UniversalClient
	engineers *collection[domain.Engineer, *domain.Engineer]
	quotas    *collection[domain.Quota, *domain.Quota]
	requests  *collection[domain.LeaveRequest, *domain.LeaveRequest]
	capacity  *counter
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the clock used for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New(rdb redis.UniversalClient, opts ...Option) *Store {
	o := options{now: func() time.Time { return time.Now().UTC() }}
	for _, fn := range opts {
		fn(&o)
	}
	return &Store{
		rdb:       rdb,
		engineers: &collection[domain.Engineer, *domain.Engineer]{rdb: rdb, name: storage.CollectionEngineers, now: o.now},
		quotas:    &collection[domain.Quota, *domain.Quota]{rdb: rdb, name: storage.CollectionQuotas, now: o.now},
		requests:  &collection[domain.LeaveRequest, *domain.LeaveRequest]{rdb: rdb, name: storage.CollectionRequests, now: o.now},
		capacity:  &counter{rdb: rdb, now: o.now},
	}
}

func (s *Store) Engineers() storage.Collection[domain.Engineer]    { return s.engineers }
func (s *Store) Quotas() storage.Collection[domain.Quota]          { return s.quotas }
func (s *Store) Requests() storage.Collection[domain.LeaveRequest] { return s.requests }
func (s *Store) Capacity() storage.CapacityCounter                 { return s.capacity }
func (s *Store) Close() error                                      { return s.rdb.Close() }

// ObjectKey is the redis key of one record.
func ObjectKey(collection, key string) string {
	return collection + "/" + key + ".json"
}

type collection[T any, P storage.Entity[T]] struct {
	rdb  redis.UniversalClient
	name string
	now  func() time.Time
}

func (c *collection[T, P]) Name() string { return c.name }

func (c *collection[T, P]) Get(ctx context.Context, key string) (T, error) {
	return c.get(ctx, c.rdb, key)
}

func (c *collection[T, P]) get(ctx context.Context, cmd redis.Cmdable, key string) (T, error) {
	var rec T
	raw, err := cmd.Get(ctx, ObjectKey(c.name, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, storage.ErrNotFound
	}
	if err != nil {
		return rec, storage.Wrap("get", c.name, err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, storage.Wrap("get", c.name, fmt.Errorf("decode %s: %w", key, err))
	}
	return rec, nil
}

func (c *collection[T, P]) Put(ctx context.Context, rec T) error {
	p := P(&rec)
	if p.RecordVersion() == 0 {
		p.SetRecordVersion(1)
	}
	p.Touch(c.now())
	raw, err := json.Marshal(&rec)
	if err != nil {
		return storage.Wrap("put", c.name, err)
	}
	if err := c.rdb.Set(ctx, ObjectKey(c.name, p.RecordKey()), raw, 0).Err(); err != nil {
		return storage.Wrap("put", c.name, err)
	}
	return nil
}

func (c *collection[T, P]) Scan(ctx context.Context) ([]T, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, c.name+"/*", scanBatch).Result()
		if err != nil {
			return nil, storage.Wrap("scan", c.name, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return []T{}, nil
	}

	// SCAN may return a key more than once.
	sort.Strings(keys)
	keys = dedupe(keys)

	out := make([]T, 0, len(keys))
	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		vals, err := c.rdb.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, storage.Wrap("scan", c.name, err)
		}
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				// deleted between SCAN and MGET
				continue
			}
			var rec T
			if err := json.Unmarshal([]byte(s), &rec); err != nil {
				return nil, storage.Wrap("scan", c.name, fmt.Errorf("decode %s: %w", keys[start+i], err))
			}
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return P(&out[i]).RecordKey() < P(&out[j]).RecordKey()
	})
	return out, nil
}

func (c *collection[T, P]) Update(ctx context.Context, key string, mutate func(*T) error) (T, error) {
	var (
		result    T
		mutateErr error
	)
	objectKey := ObjectKey(c.name, key)
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		rec, err := c.get(ctx, tx, key)
		if err != nil {
			return err
		}
		p := P(&rec)
		prev := p.RecordVersion()
		if err := mutate(&rec); err != nil {
			mutateErr = err
			return err
		}
		p.SetRecordVersion(prev + 1)
		p.Touch(c.now())
		raw, err := json.Marshal(&rec)
		if err != nil {
			return storage.Wrap("update", c.name, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, objectKey, raw, 0)
			return nil
		})
		if err == nil {
			result = rec
		}
		return err
	}, objectKey)

	var zero T
	switch {
	case err == nil:
		return result, nil
	case mutateErr != nil:
		return zero, mutateErr
	case errors.Is(err, redis.TxFailedErr):
		return zero, storage.ErrConflict
	default:
		return zero, storage.Wrap("update", c.name, err)
	}
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for _, k := range sorted {
		if len(out) > 0 && out[len(out)-1] == k {
			continue
		}
		out = append(out, k)
	}
	return out
}
