package leave

import (
	"context"
	"errors"
	"fmt"

	"go-leave-ledger/internal/domain"
	leaveerrors "go-leave-ledger/internal/leave/errors"
	"go-leave-ledger/internal/storage"
	"go.uber.org/zap"
)

// An approval runs as a saga over records that cannot be written together:
//
//  1. request -> APPROVING (SlotHeld records a slot taken for it)
//  2. engineer.PendingRequestID = request
//  3. quota debit, recorded in the quota ledger under the request id
//  4. request -> APPROVED
//  5. engineer -> ON_LEAVE with the window, marker cleared
//
// A cancellation mirrors it: CANCELLING, marker, recorded refund, CANCELLED,
// then engineer reset and slot release. Every step is idempotent, so an
// interrupted saga is finished by running it again from the top. The marker
// is always the last thing cleared, which lets the next caller holding the
// employee lock find unfinished work.

func balanceReason(available, requested int) string {
	return fmt.Sprintf("Insufficient leave balance. Available: %d, requested: %d", available, requested)
}

func (s *service) capacityReason() string {
	return fmt.Sprintf("Not enough engineers available. At least %d must remain available.", s.policy.AvailabilityFloor)
}

// decide applies the balance then capacity rules to a request and either
// records the denial or approves it. persisted tells whether req is already
// stored as PENDING.
func (s *service) decide(ctx context.Context, req domain.LeaveRequest, persisted bool) (Decision, error) {
	logger := s.log(ctx).With(zap.String("request_id", req.RequestID), zap.String("employee_id", req.EmployeeID))

	quota, err := s.store.Quotas().Get(ctx, req.EmployeeID)
	if storage.IsNotFound(err) {
		return Decision{}, leaveerrors.ErrEmployeeNotFound
	}
	if err != nil {
		return Decision{}, err
	}

	if req.Days > quota.AvailableDays {
		logger.Info("leave denied: balance", zap.Int("available", quota.AvailableDays), zap.Int("requested", req.Days))
		req, err = s.recordDenial(ctx, req, persisted, domain.RequestDeniedBalance, balanceReason(quota.AvailableDays, req.Days))
		if err != nil {
			return Decision{}, err
		}
		d := decisionFor(req)
		d.AvailableDays = &quota.AvailableDays
		return d, nil
	}

	eng, err := s.store.Engineers().Get(ctx, req.EmployeeID)
	if storage.IsNotFound(err) {
		eng = domain.NewAvailableEngineer(req.EmployeeID)
	} else if err != nil {
		return Decision{}, err
	}

	// An engineer already on leave keeps the unavailable count unchanged.
	slot := false
	if !eng.IsOnLeave() {
		granted, err := s.acquireSlot(ctx)
		if err != nil {
			return Decision{}, err
		}
		if !granted {
			logger.Info("leave denied: capacity", zap.Int("max_on_leave", s.policy.MaxOnLeave()))
			req, err = s.recordDenial(ctx, req, persisted, domain.RequestDeniedCapacity, s.capacityReason())
			if err != nil {
				return Decision{}, err
			}
			return s.withBalance(ctx, decisionFor(req)), nil
		}
		slot = true
	}

	req.SlotHeld = slot
	if persisted {
		req, err = s.transition(ctx, req.RequestID, domain.RequestApproving, func(r *domain.LeaveRequest) {
			r.SlotHeld = slot
		})
	} else {
		req.Status = domain.RequestApproving
		err = s.store.Requests().Put(ctx, req)
	}
	if err != nil {
		s.abandonSlot(ctx, req.RequestID, slot)
		return Decision{}, err
	}

	req, err = s.finishApproval(ctx, req)
	if err != nil {
		logger.Error("approval saga interrupted, left for recovery", zap.Error(err))
		return Decision{}, err
	}
	return s.withBalance(ctx, decisionFor(req)), nil
}

func (s *service) acquireSlot(ctx context.Context) (bool, error) {
	granted, err := s.store.Capacity().Acquire(ctx, s.policy.MaxOnLeave())
	if storage.IsNotFound(err) {
		if err := s.EnsureCapacityCounter(ctx); err != nil {
			return false, err
		}
		granted, err = s.store.Capacity().Acquire(ctx, s.policy.MaxOnLeave())
	}
	return granted, err
}

// abandonSlot gives back a slot taken for a request whose APPROVING write
// failed. When the outcome of that write is unknown the slot is kept: an
// over-count only denies more, an under-count could breach the floor.
func (s *service) abandonSlot(ctx context.Context, requestID string, slot bool) {
	if !slot {
		return
	}
	logger := s.log(ctx).With(zap.String("request_id", requestID))
	stored, err := s.store.Requests().Get(ctx, requestID)
	switch {
	case err == nil && stored.Status == domain.RequestApproving:
		logger.Warn("approving write landed despite error, leaving for recovery")
		return
	case err != nil && !storage.IsNotFound(err):
		logger.Error("cannot confirm approving write, keeping capacity slot", zap.Error(err))
		return
	}
	if err := s.store.Capacity().Release(ctx); err != nil {
		logger.Error("release capacity slot failed", zap.Error(err))
	}
}

func (s *service) recordDenial(ctx context.Context, req domain.LeaveRequest, persisted bool, status domain.RequestStatus, reason string) (domain.LeaveRequest, error) {
	if persisted {
		return s.transition(ctx, req.RequestID, status, func(r *domain.LeaveRequest) {
			r.Reason = reason
		})
	}
	req.Status = status
	req.Reason = reason
	if err := s.store.Requests().Put(ctx, req); err != nil {
		return domain.LeaveRequest{}, err
	}
	return req, nil
}

// finishApproval runs steps 2 to 5 for a request in APPROVING, or step 5
// alone for an APPROVED request whose engineer still carries its marker.
func (s *service) finishApproval(ctx context.Context, req domain.LeaveRequest) (domain.LeaveRequest, error) {
	if req.Status == domain.RequestApproving {
		if err := s.markEngineer(ctx, req); err != nil {
			return req, err
		}

		_, err := s.updateQuota(ctx, req.EmployeeID, func(q *domain.Quota) error {
			return q.Debit(req.RequestID, req.Days)
		})
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return s.denyInFlight(ctx, req)
		}
		if storage.IsNotFound(err) {
			return req, leaveerrors.ErrEmployeeNotFound
		}
		if err != nil {
			return req, err
		}

		if req, err = s.transition(ctx, req.RequestID, domain.RequestApproved, nil); err != nil {
			return req, err
		}
	}

	_, err := s.updateEngineer(ctx, req.EmployeeID, func(e *domain.Engineer) {
		if e.PendingRequestID != req.RequestID {
			return
		}
		from, to := req.StartDate, req.EndDate
		e.CurrentStatus = domain.EngineerOnLeave
		e.OnLeaveFrom = &from
		e.OnLeaveTo = &to
		e.PendingRequestID = ""
	})
	return req, err
}

// denyInFlight turns an APPROVING request whose debit no longer fits into
// DENIED_BALANCE. The slot goes back only after the marker is cleared so a
// crash in between over-counts rather than releasing twice.
func (s *service) denyInFlight(ctx context.Context, req domain.LeaveRequest) (domain.LeaveRequest, error) {
	q, err := s.store.Quotas().Get(ctx, req.EmployeeID)
	if err != nil {
		return req, err
	}
	req, err = s.transition(ctx, req.RequestID, domain.RequestDeniedBalance, func(r *domain.LeaveRequest) {
		r.Reason = balanceReason(q.AvailableDays, r.Days)
	})
	if err != nil {
		return req, err
	}
	return req, s.finishDenial(ctx, req)
}

func (s *service) finishDenial(ctx context.Context, req domain.LeaveRequest) error {
	cleared := false
	_, err := s.updateEngineer(ctx, req.EmployeeID, func(e *domain.Engineer) {
		cleared = false
		if e.PendingRequestID == req.RequestID {
			e.PendingRequestID = ""
			cleared = true
		}
	})
	if err != nil {
		return err
	}
	if cleared && req.SlotHeld {
		return s.store.Capacity().Release(ctx)
	}
	return nil
}

// finishCancellation runs the cancellation from CANCELLING, or only its
// engineer step for a CANCELLED request whose engineer still carries the marker.
func (s *service) finishCancellation(ctx context.Context, req domain.LeaveRequest) (domain.LeaveRequest, error) {
	if req.Status == domain.RequestCancelling {
		if err := s.markEngineer(ctx, req); err != nil {
			return req, err
		}

		_, err := s.updateQuota(ctx, req.EmployeeID, func(q *domain.Quota) error {
			q.Refund(req.RequestID, req.Days)
			return nil
		})
		if err != nil {
			return req, err
		}

		if req, err = s.transition(ctx, req.RequestID, domain.RequestCancelled, nil); err != nil {
			return req, err
		}
	}

	reset := false
	_, err := s.updateEngineer(ctx, req.EmployeeID, func(e *domain.Engineer) {
		reset = false
		if e.PendingRequestID != req.RequestID {
			return
		}
		e.PendingRequestID = ""
		// A later approval may have moved the window; then the engineer stays on leave.
		if e.IsOnLeave() && e.OnLeaveWindow(req.StartDate, req.EndDate) {
			e.CurrentStatus = domain.EngineerAvailable
			e.OnLeaveFrom = nil
			e.OnLeaveTo = nil
			reset = true
		}
	})
	if err != nil {
		return req, err
	}
	if reset {
		if err := s.store.Capacity().Release(ctx); err != nil {
			s.log(ctx).Error("release capacity slot failed, counter over-counts by one",
				zap.String("request_id", req.RequestID),
				zap.Error(err),
			)
		}
	}
	return req, nil
}

func (s *service) markEngineer(ctx context.Context, req domain.LeaveRequest) error {
	_, err := s.updateEngineer(ctx, req.EmployeeID, func(e *domain.Engineer) {
		e.PendingRequestID = req.RequestID
	})
	return err
}

// resume finishes whatever saga requestID was part of.
func (s *service) resume(ctx context.Context, requestID string) (domain.LeaveRequest, error) {
	req, err := s.store.Requests().Get(ctx, requestID)
	if storage.IsNotFound(err) {
		return req, nil
	}
	if err != nil {
		return req, err
	}

	switch req.Status {
	case domain.RequestApproving, domain.RequestApproved:
		return s.finishApproval(ctx, req)
	case domain.RequestCancelling, domain.RequestCancelled:
		return s.finishCancellation(ctx, req)
	case domain.RequestDeniedBalance, domain.RequestDeniedCapacity:
		return req, s.finishDenial(ctx, req)
	default:
		return req, nil
	}
}

// recoverEmployee finishes the saga named by the engineer marker, then any
// request of the employee still in flight without one. It returns the
// requests it touched.
func (s *service) recoverEmployee(ctx context.Context, employeeID string, own []domain.LeaveRequest) ([]domain.LeaveRequest, error) {
	eng, err := s.store.Engineers().Get(ctx, employeeID)
	if err != nil && !storage.IsNotFound(err) {
		return nil, err
	}

	var resumed []domain.LeaveRequest
	if marker := eng.PendingRequestID; marker != "" {
		s.log(ctx).Warn("resuming interrupted saga",
			zap.String("employee_id", employeeID),
			zap.String("request_id", marker),
		)
		req, err := s.resume(ctx, marker)
		if err != nil {
			return resumed, err
		}
		if req.RequestID == "" {
			// Marker points at a request that no longer exists.
			if _, err := s.updateEngineer(ctx, employeeID, func(e *domain.Engineer) {
				if e.PendingRequestID == marker {
					e.PendingRequestID = ""
				}
			}); err != nil {
				return resumed, err
			}
		} else {
			resumed = append(resumed, req)
		}
	}

	for _, r := range own {
		if !r.Status.InFlight() || r.RequestID == eng.PendingRequestID {
			continue
		}
		s.log(ctx).Warn("resuming in-flight request",
			zap.String("employee_id", employeeID),
			zap.String("request_id", r.RequestID),
			zap.String("status", string(r.Status)),
		)
		req, err := s.resume(ctx, r.RequestID)
		if err != nil {
			return resumed, err
		}
		resumed = append(resumed, req)
	}
	return resumed, nil
}

func (s *service) transition(ctx context.Context, requestID string, to domain.RequestStatus, mutate func(*domain.LeaveRequest)) (domain.LeaveRequest, error) {
	return retryConflict(ctx, s.policy.ConflictRetries, func() (domain.LeaveRequest, error) {
		return s.store.Requests().Update(ctx, requestID, func(r *domain.LeaveRequest) error {
			if r.Status != to && !domain.CanTransition(r.Status, to) {
				return fmt.Errorf("%w: %s -> %s", leaveerrors.ErrInvalidStatusTransition, r.Status, to)
			}
			r.Status = to
			if mutate != nil {
				mutate(r)
			}
			return nil
		})
	})
}

func (s *service) updateQuota(ctx context.Context, employeeID string, mutate func(*domain.Quota) error) (domain.Quota, error) {
	return retryConflict(ctx, s.policy.ConflictRetries, func() (domain.Quota, error) {
		return s.store.Quotas().Update(ctx, employeeID, mutate)
	})
}

// updateEngineer creates the availability row on first write.
func (s *service) updateEngineer(ctx context.Context, employeeID string, mutate func(*domain.Engineer)) (domain.Engineer, error) {
	return retryConflict(ctx, s.policy.ConflictRetries, func() (domain.Engineer, error) {
		eng, err := s.store.Engineers().Update(ctx, employeeID, func(e *domain.Engineer) error {
			mutate(e)
			return nil
		})
		if !storage.IsNotFound(err) {
			return eng, err
		}
		eng = domain.NewAvailableEngineer(employeeID)
		mutate(&eng)
		return eng, s.store.Engineers().Put(ctx, eng)
	})
}

func retryConflict[T any](ctx context.Context, retries int, fn func() (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	for attempt := 0; attempt <= retries; attempt++ {
		v, err = fn()
		if !storage.IsConflict(err) || ctx.Err() != nil {
			return v, err
		}
	}
	return v, err
}
