// Package memstore keeps the collections in process memory. It backs tests
// and single-process local runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go-leave-ledger/internal/domain"
	"go-leave-ledger/internal/storage"
)

type Store struct {
	engineers *collection[domain.Engineer, *domain.Engineer]
	quotas    *collection[domain.Quota, *domain.Quota]
	requests  *collection[domain.LeaveRequest, *domain.LeaveRequest]
	capacity  *counter
}

func New() *Store {
	return &Store{
		engineers: newCollection[domain.Engineer](storage.CollectionEngineers),
		quotas:    newCollection[domain.Quota](storage.CollectionQuotas),
		requests:  newCollection[domain.LeaveRequest](storage.CollectionRequests),
		capacity:  &counter{},
	}
}

func (s *Store) Engineers() storage.Collection[domain.Engineer]     { return s.engineers }
func (s *Store) Quotas() storage.Collection[domain.Quota]           { return s.quotas }
func (s *Store) Requests() storage.Collection[domain.LeaveRequest]  { return s.requests }
func (s *Store) Capacity() storage.CapacityCounter                  { return s.capacity }
func (s *Store) Close() error                                       { return nil }

type collection[T any, P storage.Entity[T]] struct {
	name string
	mu   sync.RWMutex
	rows map[string]T
}

func newCollection[T any, P storage.Entity[T]](name string) *collection[T, P] {
	return &collection[T, P]{name: name, rows: make(map[string]T)}
}

func (c *collection[T, P]) Name() string { return c.name }

func (c *collection[T, P]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, storage.Wrap("get", c.name, err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.rows[key]
	if !ok {
		return zero, storage.ErrNotFound
	}
	return rec, nil
}

func (c *collection[T, P]) Put(ctx context.Context, rec T) error {
	if err := ctx.Err(); err != nil {
		return storage.Wrap("put", c.name, err)
	}
	p := P(&rec)
	if p.RecordVersion() == 0 {
		p.SetRecordVersion(1)
	}
	p.Touch(time.Now().UTC())
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[p.RecordKey()] = rec
	return nil
}

func (c *collection[T, P]) Scan(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.Wrap("scan", c.name, err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.rows))
	for k := range c.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.rows[k])
	}
	return out, nil
}

func (c *collection[T, P]) Update(ctx context.Context, key string, mutate func(*T) error) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, storage.Wrap("update", c.name, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.rows[key]
	if !ok {
		return zero, storage.ErrNotFound
	}
	if err := mutate(&rec); err != nil {
		return zero, err
	}
	p := P(&rec)
	if p.RecordKey() != key {
		return zero, storage.Wrap("update", c.name, fmt.Errorf("mutation changed key %q to %q", key, p.RecordKey()))
	}
	stored := c.rows[key]
	p.SetRecordVersion(P(&stored).RecordVersion() + 1)
	p.Touch(time.Now().UTC())
	c.rows[key] = rec
	return rec, nil
}
