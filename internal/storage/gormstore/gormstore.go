// Package gormstore is the table-store backend: one table per collection,
// optimistic versioned updates and a conditional-update capacity counter.
package gormstore

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go-leave-ledger/internal/domain"
	"go-leave-ledger/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db        *gorm.DB
	engineers *collection[domain.Engineer, *domain.Engineer]
	quotas    *collection[domain.Quota, *domain.Quota]
	requests  *collection[domain.LeaveRequest, *domain.LeaveRequest]
	capacity  *counter
	logger    *zap.Logger
}

func New(db *gorm.DB, logger ...*zap.Logger) *Store {
	l := zap.L().Named("storage.gorm")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Store{
		db:        db,
		engineers: &collection[domain.Engineer, *domain.Engineer]{db: db, name: storage.CollectionEngineers, keyColumn: "employee_id"},
		quotas:    &collection[domain.Quota, *domain.Quota]{db: db, name: storage.CollectionQuotas, keyColumn: "employee_id"},
		requests:  &collection[domain.LeaveRequest, *domain.LeaveRequest]{db: db, name: storage.CollectionRequests, keyColumn: "request_id"},
		capacity:  &counter{db: db},
		logger:    l,
	}
}

// Migrate creates or alters the four tables.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&domain.Engineer{},
		&domain.Quota{},
		&domain.LeaveRequest{},
		&domain.CapacityCounter{},
	)
	if err != nil {
		s.logger.Error("auto migrate failed", zap.Error(err))
		return storage.Wrap("migrate", "", err)
	}
	return nil
}

func (s *Store) Engineers() storage.Collection[domain.Engineer]    { return s.engineers }
func (s *Store) Quotas() storage.Collection[domain.Quota]          { return s.quotas }
func (s *Store) Requests() storage.Collection[domain.LeaveRequest] { return s.requests }
func (s *Store) Capacity() storage.CapacityCounter                 { return s.capacity }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type collection[T any, P storage.Entity[T]] struct {
	db        *gorm.DB
	name      string
	keyColumn string
}

func (c *collection[T, P]) Name() string { return c.name }

func (c *collection[T, P]) Get(ctx context.Context, key string) (T, error) {
	var rec T
	err := c.db.WithContext(ctx).
		Where(c.keyColumn+" = ?", key).
		Take(&rec).Error
	if err != nil {
		var zero T
		return zero, classify("get", c.name, err)
	}
	return rec, nil
}

func (c *collection[T, P]) Put(ctx context.Context, rec T) error {
	p := P(&rec)
	if p.RecordVersion() == 0 {
		p.SetRecordVersion(1)
	}
	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	return classify("put", c.name, err)
}

func (c *collection[T, P]) Scan(ctx context.Context) ([]T, error) {
	var rows []T
	err := c.db.WithContext(ctx).
		Order(c.keyColumn).
		Find(&rows).Error
	if err != nil {
		return nil, classify("scan", c.name, err)
	}
	return rows, nil
}

func (c *collection[T, P]) Update(ctx context.Context, key string, mutate func(*T) error) (T, error) {
	var zero T
	rec, err := c.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	prev := P(&rec).RecordVersion()
	if err := mutate(&rec); err != nil {
		return zero, err
	}
	P(&rec).SetRecordVersion(prev + 1)

	res := c.db.WithContext(ctx).
		Model(new(T)).
		Where(c.keyColumn+" = ? AND version = ?", key, prev).
		Select("*").
		Updates(&rec)
	if res.Error != nil {
		return zero, classify("update", c.name, res.Error)
	}
	if res.RowsAffected == 0 {
		return zero, storage.ErrConflict
	}
	return rec, nil
}

// classify maps driver errors onto the storage taxonomy.
func classify(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrConflict
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01":
			// unique_violation, serialization_failure, deadlock_detected
			return storage.ErrConflict
		}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return storage.ErrConflict
	}
	return storage.Wrap(op, collection, err)
}
