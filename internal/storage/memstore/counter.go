package memstore

import (
	"context"
	"sync"
	"time"

	"go-leave-ledger/internal/domain"
	"go-leave-ledger/internal/storage"
)

type counter struct {
	mu  sync.Mutex
	rec *domain.CapacityCounter
}

func (c *counter) Load(ctx context.Context) (domain.CapacityCounter, error) {
	if err := ctx.Err(); err != nil {
		return domain.CapacityCounter{}, storage.Wrap("load", storage.CollectionCapacity, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil {
		return domain.CapacityCounter{}, storage.ErrNotFound
	}
	return *c.rec, nil
}

func (c *counter) Init(ctx context.Context, onLeave int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, storage.Wrap("init", storage.CollectionCapacity, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil {
		return false, nil
	}
	c.rec = &domain.CapacityCounter{Name: domain.CapacityCounterName, OnLeave: onLeave, UpdatedAt: time.Now().UTC()}
	return true, nil
}

func (c *counter) Acquire(ctx context.Context, limit int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, storage.Wrap("acquire", storage.CollectionCapacity, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil {
		return false, storage.ErrNotFound
	}
	if c.rec.OnLeave >= limit {
		return false, nil
	}
	c.rec.OnLeave++
	c.rec.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (c *counter) Release(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return storage.Wrap("release", storage.CollectionCapacity, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil {
		return storage.ErrNotFound
	}
	if c.rec.OnLeave > 0 {
		c.rec.OnLeave--
	}
	c.rec.UpdatedAt = time.Now().UTC()
	return nil
}
