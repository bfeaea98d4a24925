package leave_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go-leave-ledger/internal/domain"
	"go-leave-ledger/internal/leave"
	"go-leave-ledger/internal/shared/locker"
	"go-leave-ledger/internal/storage"
	"go-leave-ledger/internal/storage/memstore"
	"go.uber.org/zap"
)

// faultyStore fails the next N quota updates with a transient error.
type faultyStore struct {
	*memstore.Store
	quotas *faultyQuotas
}

func (f *faultyStore) Quotas() storage.Collection[domain.Quota] { return f.quotas }

type faultyQuotas struct {
	storage.Collection[domain.Quota]
	failUpdates atomic.Int32
}

func (f *faultyQuotas) Update(ctx context.Context, key string, mutate func(*domain.Quota) error) (domain.Quota, error) {
	if f.failUpdates.Add(-1) >= 0 {
		return domain.Quota{}, storage.Wrap("update", storage.CollectionQuotas, errors.New("i/o timeout"))
	}
	return f.Collection.Update(ctx, key, mutate)
}

type engineFixture struct {
	store *faultyStore
	svc   leave.Service
}

func newEngine(t *testing.T, mutate ...func(*leave.Policy)) *engineFixture {
	t.Helper()
	mem := memstore.New()
	fs := &faultyStore{Store: mem, quotas: &faultyQuotas{Collection: mem.Quotas()}}
	policy := leave.DefaultPolicy()
	for _, fn := range mutate {
		fn(&policy)
	}
	svc := leave.NewService(fs, locker.NewKeyedMutex(), policy, zap.NewNop())
	require.NoError(t, svc.EnsureCapacityCounter(context.Background()))
	return &engineFixture{store: fs, svc: svc}
}

func (f *engineFixture) seedQuota(t *testing.T, employeeID string, allowance, taken int) {
	t.Helper()
	require.NoError(t, f.store.Quotas().Put(context.Background(), domain.NewQuota(employeeID, allowance, 0, taken)))
}

// seedOnLeave puts n engineers on leave and brings the counter in line.
func (f *engineFixture) seedOnLeave(t *testing.T, n int) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("OL%03d", i)
		from, to := "2025-06-01", "2025-06-30"
		require.NoError(t, f.store.Engineers().Put(ctx, domain.Engineer{
			EmployeeID:    id,
			CurrentStatus: domain.EngineerOnLeave,
			OnLeaveFrom:   &from,
			OnLeaveTo:     &to,
		}))
		ok, err := f.store.Capacity().Acquire(ctx, 100)
		require.NoError(t, err)
		require.True(t, ok)
		ids[i] = id
	}
	return ids
}

func (f *engineFixture) quota(t *testing.T, employeeID string) domain.Quota {
	t.Helper()
	q, err := f.store.Quotas().Get(context.Background(), employeeID)
	require.NoError(t, err)
	return q
}

func (f *engineFixture) engineer(t *testing.T, employeeID string) domain.Engineer {
	t.Helper()
	e, err := f.store.Engineers().Get(context.Background(), employeeID)
	if storage.IsNotFound(err) {
		return domain.NewAvailableEngineer(employeeID)
	}
	require.NoError(t, err)
	return e
}

func (f *engineFixture) request(t *testing.T, requestID string) domain.LeaveRequest {
	t.Helper()
	r, err := f.store.Requests().Get(context.Background(), requestID)
	require.NoError(t, err)
	return r
}

func (f *engineFixture) counter(t *testing.T) int {
	t.Helper()
	c, err := f.store.Capacity().Load(context.Background())
	require.NoError(t, err)
	return c.OnLeave
}

func (f *engineFixture) onLeaveCount(t *testing.T) int {
	t.Helper()
	all, err := f.store.Engineers().Scan(context.Background())
	require.NoError(t, err)
	n := 0
	for _, e := range all {
		if e.IsOnLeave() {
			n++
		}
	}
	return n
}
