package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go-leave-ledger/internal/domain"
	"go.uber.org/zap"
)

// RetryPolicy bounds every storage call.
type RetryPolicy struct {
	Timeout    time.Duration
	MaxRetries int

	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:         2 * time.Second,
		MaxRetries:      3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	return p
}

// Retrying wraps a Store so each call runs under the policy timeout and
// transient failures are retried with exponential backoff. ErrNotFound,
// ErrConflict and errors returned by Update mutations are never retried.
func Retrying(inner Store, policy RetryPolicy, logger ...*zap.Logger) Store {
	l := zap.L().Named("storage.retry")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	r := &retrier{policy: policy.withDefaults(), logger: l}
	return &retryingStore{
		inner:     inner,
		engineers: &retryingCollection[domain.Engineer]{inner: inner.Engineers(), r: r},
		quotas:    &retryingCollection[domain.Quota]{inner: inner.Quotas(), r: r},
		requests:  &retryingCollection[domain.LeaveRequest]{inner: inner.Requests(), r: r},
		capacity:  &retryingCounter{inner: inner.Capacity(), r: r},
	}
}

type retryingStore struct {
	inner     Store
	engineers Collection[domain.Engineer]
	quotas    Collection[domain.Quota]
	requests  Collection[domain.LeaveRequest]
	capacity  CapacityCounter
}

func (s *retryingStore) Engineers() Collection[domain.Engineer]   { return s.engineers }
func (s *retryingStore) Quotas() Collection[domain.Quota]         { return s.quotas }
func (s *retryingStore) Requests() Collection[domain.LeaveRequest] { return s.requests }
func (s *retryingStore) Capacity() CapacityCounter                { return s.capacity }
func (s *retryingStore) Close() error                             { return s.inner.Close() }

type retrier struct {
	policy RetryPolicy
	logger *zap.Logger
}

func run[T any](ctx context.Context, r *retrier, op, collection string, fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval

	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()

		v, err := fn(callCtx)
		if err == nil {
			return v, nil
		}
		if !IsTransient(err) && !isContextErr(err) {
			return v, backoff.Permanent(err)
		}
		r.logger.Warn("storage call failed",
			zap.String("op", op),
			zap.String("collection", collection),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return v, Wrap(op, collection, err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(r.policy.MaxRetries+1)))

	if err != nil && isContextErr(err) {
		err = Wrap(op, collection, err)
	}
	return res, err
}

type retryingCollection[T any] struct {
	inner Collection[T]
	r     *retrier
}

func (c *retryingCollection[T]) Name() string { return c.inner.Name() }

func (c *retryingCollection[T]) Get(ctx context.Context, key string) (T, error) {
	return run(ctx, c.r, "get", c.inner.Name(), func(ctx context.Context) (T, error) {
		return c.inner.Get(ctx, key)
	})
}

func (c *retryingCollection[T]) Put(ctx context.Context, rec T) error {
	_, err := run(ctx, c.r, "put", c.inner.Name(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.inner.Put(ctx, rec)
	})
	return err
}

func (c *retryingCollection[T]) Scan(ctx context.Context) ([]T, error) {
	return run(ctx, c.r, "scan", c.inner.Name(), func(ctx context.Context) ([]T, error) {
		return c.inner.Scan(ctx)
	})
}

func (c *retryingCollection[T]) Update(ctx context.Context, key string, mutate func(*T) error) (T, error) {
	return run(ctx, c.r, "update", c.inner.Name(), func(ctx context.Context) (T, error) {
		return c.inner.Update(ctx, key, mutate)
	})
}

type retryingCounter struct {
	inner CapacityCounter
	r     *retrier
}

func (c *retryingCounter) Load(ctx context.Context) (domain.CapacityCounter, error) {
	return run(ctx, c.r, "load", CollectionCapacity, c.inner.Load)
}

func (c *retryingCounter) Init(ctx context.Context, onLeave int) (bool, error) {
	return run(ctx, c.r, "init", CollectionCapacity, func(ctx context.Context) (bool, error) {
		return c.inner.Init(ctx, onLeave)
	})
}

func (c *retryingCounter) Acquire(ctx context.Context, limit int) (bool, error) {
	return run(ctx, c.r, "acquire", CollectionCapacity, func(ctx context.Context) (bool, error) {
		return c.inner.Acquire(ctx, limit)
	})
}

func (c *retryingCounter) Release(ctx context.Context) error {
	_, err := run(ctx, c.r, "release", CollectionCapacity, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.inner.Release(ctx)
	})
	return err
}
