package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lease only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// extendScript pushes the lease expiry out only while we still own it.
var extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

var errLockBusy = errors.New("lock busy")

const defaultLeaseTTL = 10 * time.Second

// RedisLocker takes a SET NX PX lease per key and renews it every third of
// the TTL while held. A holder that crashes loses the lock once the TTL runs
// out.
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

func NewRedisLocker(rdb redis.UniversalClient, ttl, wait time.Duration, logger ...*zap.Logger) *RedisLocker {
	l := zap.L().Named("locker.redis")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLocker{rdb: rdb, prefix: "lock:employee:", ttl: ttl, wait: wait, logger: l}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	lockKey := r.prefix + key
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (bool, error) {
		ok, err := r.rdb.SetNX(ctx, lockKey, token, r.ttl).Result()
		if err != nil {
			return false, backoff.Permanent(err)
		}
		if !ok {
			return false, errLockBusy
		}
		return true, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(r.wait))
	if err != nil {
		if errors.Is(err, errLockBusy) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			r.logger.Warn("lock wait expired", zap.String("key", lockKey), zap.Duration("wait", r.wait))
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		return nil, fmt.Errorf("%w: acquire lock %s: %w", ErrUnavailable, key, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(lockKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.rdb, []string{lockKey}, token).Err(); err != nil {
				r.logger.Error("release lock failed", zap.String("key", lockKey), zap.Error(err))
			}
		})
	}, nil
}

func (r *RedisLocker) keepAlive(lockKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := r.extend(lockKey, token)
			if err != nil {
				r.logger.Warn("extend lock failed", zap.String("key", lockKey), zap.Error(err))
				continue
			}
			if !held {
				r.logger.Error("lock lease lost while held", zap.String("key", lockKey))
				return
			}
		}
	}
}

func (r *RedisLocker) extend(lockKey, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
	defer cancel()
	n, err := extendScript.Run(ctx, r.rdb, []string{lockKey}, token, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
