package gormstore

import (
	"context"
	"time"

	"go-leave-ledger/internal/domain"
	"go-leave-ledger/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type counter struct {
	db *gorm.DB
}

func (c *counter) Load(ctx context.Context) (domain.CapacityCounter, error) {
	var rec domain.CapacityCounter
	err := c.db.WithContext(ctx).
		Where("name = ?", domain.CapacityCounterName).
		Take(&rec).Error
	if err != nil {
		return domain.CapacityCounter{}, classify("load", storage.CollectionCapacity, err)
	}
	return rec, nil
}

func (c *counter) Init(ctx context.Context, onLeave int) (bool, error) {
	rec := domain.CapacityCounter{Name: domain.CapacityCounterName, OnLeave: onLeave}
	res := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec)
	if err := classify("init", storage.CollectionCapacity, res.Error); err != nil {
		if storage.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return res.RowsAffected == 1, nil
}

// Acquire relies on the database evaluating the guard and the increment in
// one statement.
func (c *counter) Acquire(ctx context.Context, limit int) (bool, error) {
	res := c.db.WithContext(ctx).
		Model(&domain.CapacityCounter{}).
		Where("name = ? AND on_leave < ?", domain.CapacityCounterName, limit).
		Updates(map[string]any{
			"on_leave":   gorm.Expr("on_leave + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, classify("acquire", storage.CollectionCapacity, res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	if _, err := c.Load(ctx); err != nil {
		return false, err
	}
	return false, nil
}

func (c *counter) Release(ctx context.Context) error {
	res := c.db.WithContext(ctx).
		Model(&domain.CapacityCounter{}).
		Where("name = ? AND on_leave > 0", domain.CapacityCounterName).
		Updates(map[string]any{
			"on_leave":   gorm.Expr("on_leave - 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return classify("release", storage.CollectionCapacity, res.Error)
	}
	if res.RowsAffected == 0 {
		_, err := c.Load(ctx)
		return err
	}
	return nil
}
