package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go-leave-ledger/internal/config"
	"go-leave-ledger/internal/leave"
	"go-leave-ledger/internal/shared/connection"
	"go-leave-ledger/internal/shared/locker"
	"go-leave-ledger/internal/storage"
	"go-leave-ledger/internal/storage/gormstore"
	"go-leave-ledger/internal/storage/memstore"
	"go-leave-ledger/internal/storage/redisstore"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Infra holds the shared connections one binary needs.
type Infra struct {
	Store  storage.Store
	Locker locker.Locker
	Redis  *redis.Client

	closers []func() error
}

// OpenInfra connects the configured storage backend, wraps it with retries
// and timeouts, and picks the employee locker.
func OpenInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	logger := zap.L().Named("app.infra")
	in := &Infra{}

	if cfg.NeedsRedis() {
		rdb, err := connection.ConnectRedisWithRetry(cfg.RedisAddr, cfg.ConnectRetries)
		if err != nil {
			return nil, err
		}
		in.Redis = rdb
		in.closers = append(in.closers, rdb.Close)
	}

	var backend storage.Store
	switch cfg.StorageBackend {
	case "memory":
		logger.Warn("using in-memory storage, state is lost on exit")
		backend = memstore.New()
	case "gorm":
		var dialector gorm.Dialector
		if cfg.DB.Driver == "sqlite" {
			dialector = connection.SQLiteDialector(cfg.DB.SQLitePath)
		} else {
			dialector = connection.PostgresDialector(cfg.DB.Host, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.Port, cfg.DB.SSLMode)
		}
		db, err := connection.ConnectGORMWithRetry(dialector, cfg.ConnectRetries)
		if err != nil {
			in.Close()
			return nil, err
		}
		gs := gormstore.New(db)
		in.closers = append(in.closers, gs.Close)
		if err := gs.Migrate(ctx); err != nil {
			in.Close()
			return nil, err
		}
		backend = gs
	case "redis":
		// The client is closed through in.closers, not the store.
		backend = redisstore.New(in.Redis)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	in.Store = storage.Retrying(backend, storage.RetryPolicy{
		Timeout:    cfg.StorageTimeout,
		MaxRetries: cfg.StorageMaxRetries,
	})

	if cfg.Locker == "redis" {
		in.Locker = locker.NewRedisLocker(in.Redis, cfg.LockTTL, cfg.LockWait)
	} else {
		in.Locker = locker.NewKeyedMutex()
	}

	logger.Info("infrastructure ready",
		zap.String("storage", cfg.StorageBackend),
		zap.String("locker", cfg.Locker),
		zap.Bool("redis", in.Redis != nil),
	)
	return in, nil
}

// Close releases connections in reverse order of opening.
func (in *Infra) Close() error {
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	in.closers = nil
	return errors.Join(errs...)
}

func policyFrom(cfg config.Config) leave.Policy {
	p := leave.DefaultPolicy()
	p.TotalEngineers = cfg.Leave.TotalEngineers
	p.AvailabilityFloor = cfg.Leave.AvailabilityFloor
	p.RejectSelfOverlap = cfg.Leave.RejectSelfOverlap
	if cfg.ConflictRetries > 0 {
		p.ConflictRetries = cfg.ConflictRetries
	}
	return p
}

// newLeaveService builds the engine, seeds the capacity counter and finishes
// any saga a previous process left in flight.
func newLeaveService(ctx context.Context, cfg config.Config, in *Infra) (leave.Service, error) {
	logger := zap.L().Named("app")
	svc := leave.NewService(in.Store, in.Locker, policyFrom(cfg))
	if err := svc.EnsureCapacityCounter(ctx); err != nil {
		return nil, fmt.Errorf("ensure capacity counter: %w", err)
	}
	report, err := svc.Reconcile(ctx)
	if err != nil {
		return nil, fmt.Errorf("startup reconcile: %w", err)
	}
	if report.Scanned > 0 {
		logger.Warn("startup reconcile resumed in-flight sagas",
			zap.Int("scanned", report.Scanned),
			zap.Strings("completed", report.Completed),
			zap.Strings("denied", report.Denied),
			zap.Strings("failed", report.Failed),
		)
	}
	return svc, nil
}
