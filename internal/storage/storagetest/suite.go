// Package storagetest holds behaviour checks every storage backend must pass.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-leave-ledger/internal/domain"
	"go-leave-ledger/internal/storage"
)

// Run exercises newStore against the storage contract. Each subtest gets a
// fresh store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Quotas().Get(context.Background(), "nobody")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Quotas().Put(ctx, domain.NewQuota("E001", 20, 5, 3)))

		got, err := s.Quotas().Get(ctx, "E001")
		require.NoError(t, err)
		assert.Equal(t, 22, got.AvailableDays)
		assert.Equal(t, int64(1), got.Version)
		assert.True(t, got.Consistent())
	})

	t.Run("PutNullableDates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		from, to := "2025-03-01", "2025-03-05"
		eng := domain.Engineer{EmployeeID: "E002", CurrentStatus: domain.EngineerOnLeave, OnLeaveFrom: &from, OnLeaveTo: &to}
		require.NoError(t, s.Engineers().Put(ctx, eng))
		require.NoError(t, s.Engineers().Put(ctx, domain.NewAvailableEngineer("E003")))

		got, err := s.Engineers().Get(ctx, "E002")
		require.NoError(t, err)
		assert.True(t, got.OnLeaveWindow(from, to))

		got, err = s.Engineers().Get(ctx, "E003")
		require.NoError(t, err)
		assert.Nil(t, got.OnLeaveFrom)
		assert.Nil(t, got.OnLeaveTo)
	})

	t.Run("ScanOrderedReadYourWrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, id := range []string{"R3", "R1", "R2"} {
			require.NoError(t, s.Requests().Put(ctx, domain.LeaveRequest{
				RequestID: id, EmployeeID: "E001", StartDate: "2025-01-01", EndDate: "2025-01-01",
				LeaveType: "Vacation", Days: 1, Status: domain.RequestPending,
			}))
		}
		all, err := s.Requests().Scan(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "R1", all[0].RequestID)
		assert.Equal(t, "R3", all[2].RequestID)
	})

	t.Run("UpdateBumpsVersion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Quotas().Put(ctx, domain.NewQuota("E001", 10, 0, 0)))

		got, err := s.Quotas().Update(ctx, "E001", func(q *domain.Quota) error {
			return q.Debit("R1", 4)
		})
		require.NoError(t, err)
		assert.Equal(t, 6, got.AvailableDays)
		assert.Equal(t, int64(2), got.Version)

		stored, err := s.Quotas().Get(ctx, "E001")
		require.NoError(t, err)
		assert.Equal(t, 4, stored.TakenYTD)
		assert.True(t, stored.Applied("R1", domain.OpDebit))
		assert.Equal(t, int64(2), stored.Version)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Quotas().Update(context.Background(), "ghost", func(q *domain.Quota) error { return nil })
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UpdateMutateErrorAborts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Quotas().Put(ctx, domain.NewQuota("E001", 5, 0, 0)))

		_, err := s.Quotas().Update(ctx, "E001", func(q *domain.Quota) error {
			return q.Debit("R1", 6)
		})
		assert.True(t, errors.Is(err, domain.ErrInsufficientBalance))

		stored, err := s.Quotas().Get(ctx, "E001")
		require.NoError(t, err)
		assert.Equal(t, 5, stored.AvailableDays)
		assert.Equal(t, int64(1), stored.Version)
	})

	t.Run("CounterLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c := s.Capacity()

		_, err := c.Load(ctx)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		created, err := c.Init(ctx, 1)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = c.Init(ctx, 7)
		require.NoError(t, err)
		assert.False(t, created)

		ok, err := c.Acquire(ctx, 2)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.Acquire(ctx, 2)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, c.Release(ctx))
		require.NoError(t, c.Release(ctx))
		require.NoError(t, c.Release(ctx))

		rec, err := c.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, rec.OnLeave)
	})

	t.Run("CounterConcurrentAcquire", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Capacity().Init(ctx, 0)
		require.NoError(t, err)

		const workers, limit = 16, 10
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.Capacity().Acquire(ctx, limit)
				if err == nil && ok {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, limit, granted)
		rec, err := s.Capacity().Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, limit, rec.OnLeave)
	})
}
