package leave_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-leave-ledger/internal/domain"
	"go-leave-ledger/internal/leave"
	leaveerrors "go-leave-ledger/internal/leave/errors"
	"go-leave-ledger/internal/shared/apperror"
	"go-leave-ledger/internal/shared/locker"
	"go-leave-ledger/internal/storage/memstore"
	"go.uber.org/zap"
)

func approvedEvent(requestID, employeeID, start, end string) leave.EventInput {
	return leave.EventInput{
		RequestID:  requestID,
		EmployeeID: employeeID,
		EventType:  leave.EventRequestApprove,
		StartDate:  start,
		EndDate:    end,
		LeaveType:  "Vacation",
		CreatedAt:  time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestLeaveService_ApplyEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("approval replay is idempotent", func(t *testing.T) {
		f := newEngine(t)
		f.seedQuota(t, "E001", 20, 0)
		ev := approvedEvent("E001-00001", "E001", "2025-02-10", "2025-02-12")

		first, err := f.svc.ApplyEvent(ctx, ev)
		require.NoError(t, err)
		assert.True(t, first.Approved())
		assert.False(t, first.Duplicate)

		second, err := f.svc.ApplyEvent(ctx, ev)
		require.NoError(t, err)
		assert.True(t, second.Approved())
		assert.True(t, second.Duplicate)

		q := f.quota(t, "E001")
		assert.Equal(t, 3, q.TakenYTD)
		assert.Equal(t, 17, q.AvailableDays)
		assert.Equal(t, 1, f.counter(t))
	})

	t.Run("created then approved", func(t *testing.T) {
		f := newEngine(t)
		f.seedQuota(t, "E002", 20, 0)
		ev := approvedEvent("E002-00001", "E002", "2025-02-10", "2025-02-10")
		ev.EventType = leave.EventRequestCreated

		d, err := f.svc.ApplyEvent(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, string(domain.RequestPending), d.Status)

		again, err := f.svc.ApplyEvent(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, string(domain.RequestPending), again.Status)

		d, err = f.svc.ApplyApproval(ctx, ev)
		require.NoError(t, err)
		assert.True(t, d.Approved())
		stored := f.request(t, "E002-00001")
		assert.Equal(t, domain.RequestApproved, stored.Status)
		assert.Equal(t, leave.EventRequestCreated, stored.EventType)
	})

	t.Run("denial is final on replay", func(t *testing.T) {
		f := newEngine(t)
		f.seedQuota(t, "E003", 2, 0)
		ev := approvedEvent("E003-00001", "E003", "2025-02-10", "2025-02-14")

		d, err := f.svc.ApplyEvent(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, string(domain.RequestDeniedBalance), d.Status)

		f.seedQuota(t, "E003", 20, 0)
		d, err = f.svc.ApplyEvent(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, string(domain.RequestDeniedBalance), d.Status)
		assert.True(t, d.Duplicate)
	})

	t.Run("missing quota leaves the request pending", func(t *testing.T) {
		f := newEngine(t)
		_, err := f.svc.ApplyEvent(ctx, approvedEvent("E404-00001", "E404", "2025-02-10", "2025-02-10"))
		assert.ErrorIs(t, err, leaveerrors.ErrEmployeeNotFound)
		assert.Equal(t, domain.RequestPending, f.request(t, "E404-00001").Status)
	})

	t.Run("invalid events are rejected", func(t *testing.T) {
		f := newEngine(t)
		ev := approvedEvent("", "E001", "2025-02-10", "2025-02-10")
		_, err := f.svc.ApplyEvent(ctx, ev)
		assert.ErrorIs(t, err, leaveerrors.ErrInvalidRequestID)

		ev = approvedEvent("R1", "E001", "2025-02-10", "2025-02-10")
		ev.EventType = "request_rejected"
		_, err = f.svc.ApplyEvent(ctx, ev)
		assert.ErrorIs(t, err, leaveerrors.ErrInvalidEventType)
	})

	t.Run("employee mismatch is rejected", func(t *testing.T) {
		f := newEngine(t)
		f.seedQuota(t, "E001", 20, 0)
		f.seedQuota(t, "E002", 20, 0)
		_, err := f.svc.ApplyEvent(ctx, approvedEvent("R1", "E001", "2025-02-10", "2025-02-10"))
		require.NoError(t, err)

		_, err = f.svc.ApplyEvent(ctx, approvedEvent("R1", "E002", "2025-02-10", "2025-02-10"))
		assert.Equal(t, http.StatusBadRequest, apperror.ToHTTP(err).Status)
	})
}

func TestLeaveService_Recovery(t *testing.T) {
	ctx := context.Background()

	t.Run("reconcile completes an interrupted approval once", func(t *testing.T) {
		f := newEngine(t)
		f.seedQuota(t, "E001", 20, 0)
		f.store.quotas.failUpdates.Store(1)

		_, err := f.svc.ApplyEvent(ctx, approvedEvent("E001-00001", "E001", "2025-02-10", "2025-02-14"))
		require.Error(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, apperror.ToHTTP(err).Status)

		stuck := f.request(t, "E001-00001")
		assert.Equal(t, domain.RequestApproving, stuck.Status)
		assert.True(t, stuck.SlotHeld)
		assert.Equal(t, "E001-00001", f.engineer(t, "E001").PendingRequestID)
		assert.Equal(t, 1, f.counter(t))

		report, err := f.svc.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Scanned)
		assert.Equal(t, []string{"E001-00001"}, report.Completed)

		again, err := f.svc.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, again.Scanned)

		assert.Equal(t, domain.RequestApproved, f.request(t, "E001-00001").Status)
		q := f.quota(t, "E001")
		assert.Equal(t, 5, q.TakenYTD)
		assert.True(t, q.Consistent())
		eng := f.engineer(t, "E001")
		assert.True(t, eng.OnLeaveWindow("2025-02-10", "2025-02-14"))
		assert.Empty(t, eng.PendingRequestID)
		assert.Equal(t, 1, f.counter(t))
	})

	t.Run("resumed approval is not charged again after a later debit", func(t *testing.T) {
		f := newEngine(t)
		ok, err := f.store.Capacity().Acquire(ctx, 10)
		require.NoError(t, err)
		require.True(t, ok)

		// R1 debited, then R3 debited on top before R1 reached APPROVED.
		q := domain.NewQuota("E001", 20, 0, 0)
		require.NoError(t, q.Debit("E001-00001", 5))
		require.NoError(t, q.Debit("E001-00003", 2))
		require.NoError(t, f.store.Quotas().Put(ctx, q))
		require.NoError(t, f.store.Requests().Put(ctx, domain.LeaveRequest{
			RequestID: "E001-00001", EmployeeID: "E001", StartDate: "2025-02-10", EndDate: "2025-02-14",
			LeaveType: "Vacation", Days: 5, Status: domain.RequestApproving, SlotHeld: true,
		}))
		require.NoError(t, f.store.Engineers().Put(ctx, domain.Engineer{
			EmployeeID: "E001", CurrentStatus: domain.EngineerAvailable, PendingRequestID: "E001-00001",
		}))

		report, err := f.svc.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"E001-00001"}, report.Completed)

		got := f.quota(t, "E001")
		assert.Equal(t, 7, got.TakenYTD)
		assert.Equal(t, 13, got.AvailableDays)
		assert.True(t, got.Consistent())
		assert.Equal(t, domain.RequestApproved, f.request(t, "E001-00001").Status)
		assert.True(t, f.engineer(t, "E001").OnLeaveWindow("2025-02-10", "2025-02-14"))
	})

	t.Run("next request for the employee finishes the saga first", func(t *testing.T) {
		f := newEngine(t)
		f.seedQuota(t, "E001", 20, 0)
		f.store.quotas.failUpdates.Store(1)

		_, err := f.svc.RequestLeave(ctx, "E001", "2025-02-10", "2025-02-14", "")
		require.Error(t, err)

		d, err := f.svc.RequestLeave(ctx, "E001", "2025-03-10", "2025-03-11", "")
		require.NoError(t, err)
		assert.True(t, d.Approved())

		q := f.quota(t, "E001")
		assert.Equal(t, 7, q.TakenYTD)
		assert.Equal(t, 1, f.counter(t))
		assert.True(t, f.engineer(t, "E001").OnLeaveWindow("2025-03-10", "2025-03-11"))
	})

	t.Run("replayed event after a crash reports the recovered outcome", func(t *testing.T) {
		f := newEngine(t)
		f.seedQuota(t, "E001", 20, 0)
		f.store.quotas.failUpdates.Store(1)
		ev := approvedEvent("E001-00001", "E001", "2025-02-10", "2025-02-11")

		_, err := f.svc.ApplyEvent(ctx, ev)
		require.Error(t, err)

		d, err := f.svc.ApplyEvent(ctx, ev)
		require.NoError(t, err)
		assert.True(t, d.Approved())
		assert.True(t, d.Duplicate)
		assert.Equal(t, 2, f.quota(t, "E001").TakenYTD)
	})

	t.Run("approving without marker is rolled forward", func(t *testing.T) {
		f := newEngine(t)
		f.seedQuota(t, "E001", 20, 0)
		ok, err := f.store.Capacity().Acquire(ctx, 10)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, f.store.Requests().Put(ctx, domain.LeaveRequest{
			RequestID: "R1", EmployeeID: "E001", StartDate: "2025-02-10", EndDate: "2025-02-11",
			LeaveType: "Vacation", Days: 2, Status: domain.RequestApproving, SlotHeld: true,
		}))

		report, err := f.svc.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"R1"}, report.Completed)
		assert.Equal(t, 18, f.quota(t, "E001").AvailableDays)
		assert.True(t, f.engineer(t, "E001").IsOnLeave())
		assert.Equal(t, 1, f.counter(t))
	})

	t.Run("approving that no longer fits is denied and frees its slot", func(t *testing.T) {
		f := newEngine(t)
		f.seedQuota(t, "E001", 1, 0)
		ok, err := f.store.Capacity().Acquire(ctx, 10)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, f.store.Requests().Put(ctx, domain.LeaveRequest{
			RequestID: "R1", EmployeeID: "E001", StartDate: "2025-02-10", EndDate: "2025-02-11",
			LeaveType: "Vacation", Days: 2, Status: domain.RequestApproving, SlotHeld: true,
		}))

		report, err := f.svc.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"R1"}, report.Denied)

		r := f.request(t, "R1")
		assert.Equal(t, domain.RequestDeniedBalance, r.Status)
		assert.Equal(t, "Insufficient leave balance. Available: 1, requested: 2", r.Reason)
		assert.Equal(t, 1, f.quota(t, "E001").AvailableDays)
		assert.False(t, f.engineer(t, "E001").IsOnLeave())
		assert.Equal(t, 0, f.counter(t))
	})

	t.Run("interrupted cancellation refunds once", func(t *testing.T) {
		f := newEngine(t)
		f.seedQuota(t, "E001", 20, 0)
		d, err := f.svc.RequestLeave(ctx, "E001", "2025-02-10", "2025-02-14", "")
		require.NoError(t, err)
		require.True(t, d.Approved())

		f.store.quotas.failUpdates.Store(1)
		_, err = f.svc.CancelLeaveRequest(ctx, "E001", "2025-02-10")
		require.Error(t, err)
		assert.Equal(t, domain.RequestCancelling, f.request(t, d.RequestID).Status)

		report, err := f.svc.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{d.RequestID}, report.Completed)

		assert.Equal(t, domain.RequestCancelled, f.request(t, d.RequestID).Status)
		q := f.quota(t, "E001")
		assert.Equal(t, 20, q.AvailableDays)
		assert.Equal(t, 0, q.TakenYTD)
		assert.False(t, f.engineer(t, "E001").IsOnLeave())
		assert.Equal(t, 0, f.counter(t))
	})
}

func TestLeaveService_EnsureCapacityCounter(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	from, to := "2025-01-01", "2025-01-02"
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, mem.Engineers().Put(ctx, domain.Engineer{
			EmployeeID: id, CurrentStatus: domain.EngineerOnLeave, OnLeaveFrom: &from, OnLeaveTo: &to,
		}))
	}
	require.NoError(t, mem.Engineers().Put(ctx, domain.NewAvailableEngineer("D")))

	svc := leave.NewService(mem, locker.NewKeyedMutex(), leave.DefaultPolicy(), zap.NewNop())
	require.NoError(t, svc.EnsureCapacityCounter(ctx))

	c, err := mem.Capacity().Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, c.OnLeave)

	// An existing counter is never recomputed.
	require.NoError(t, mem.Capacity().Release(ctx))
	require.NoError(t, svc.EnsureCapacityCounter(ctx))
	c, err = mem.Capacity().Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, c.OnLeave)
}
