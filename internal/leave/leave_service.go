package leave

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go-leave-ledger/internal/domain"
	leaveerrors "go-leave-ledger/internal/leave/errors"
	"go-leave-ledger/internal/shared/apperror"
	"go-leave-ledger/internal/shared/contextutil"
	"go-leave-ledger/internal/shared/locker"
	"go-leave-ledger/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const dateLayout = "2006-01-02"

// EventTypeDirect marks requests created through the command API.
const EventTypeDirect = "direct"

type Service interface {
	RequestLeave(ctx context.Context, employeeID, startDate, endDate, leaveType string) (Decision, error)
	CancelLeaveRequest(ctx context.Context, employeeID, startDate string) (Decision, error)
	CheckAvailabilityForDate(ctx context.Context, startDate, endDate string) (Availability, error)
	ApplyEvent(ctx context.Context, ev EventInput) (Decision, error)
	ApplyApproval(ctx context.Context, ev EventInput) (Decision, error)
	QueryBalance(ctx context.Context, employeeID string) (Balance, error)
	ListRequests(ctx context.Context, employeeID string, page, limit int) (RequestPage, error)
	ListEmployees(ctx context.Context) ([]EmployeeSummary, error)
	AvailabilityStats(ctx context.Context) (Stats, error)
	Reconcile(ctx context.Context) (ReconcileReport, error)
	EnsureCapacityCounter(ctx context.Context) error
}

type service struct {
	store   storage.Store
	locker  locker.Locker
	policy  Policy
	logger  *zap.Logger
	queries singleflight.Group
	newID   func() string
}

func NewService(store storage.Store, lk locker.Locker, policy Policy, logger ...*zap.Logger) Service {
	l := zap.L().Named("leave.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("leave.service")
	}
	if policy.ConflictRetries <= 0 {
		policy.ConflictRetries = DefaultPolicy().ConflictRetries
	}
	return &service{
		store:  store,
		locker: lk,
		policy: policy,
		logger: l,
		newID:  uuid.NewString,
	}
}

func (s *service) log(ctx context.Context) *zap.Logger {
	l := contextutil.GetLogger(ctx, s.logger)
	if rid := contextutil.GetRequestID(ctx); rid != "" {
		l = l.With(zap.String("http_request_id", rid))
	}
	return l
}

func (s *service) RequestLeave(ctx context.Context, employeeID, startDate, endDate, leaveType string) (Decision, error) {
	logger := s.log(ctx)
	logger.Debug("request leave",
		zap.String("employee_id", employeeID),
		zap.String("start_date", startDate),
		zap.String("end_date", endDate),
		zap.String("leave_type", leaveType),
	)

	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return Decision{}, leaveerrors.ErrInvalidEmployeeID
	}
	days, err := leaveDays(startDate, endDate)
	if err != nil {
		logger.Warn("request leave validation failed", zap.Error(err))
		return Decision{}, err
	}
	if leaveType == "" {
		leaveType = DefaultLeaveType
	}

	req := domain.LeaveRequest{
		RequestID:  s.newID(),
		EmployeeID: employeeID,
		StartDate:  startDate,
		EndDate:    endDate,
		LeaveType:  leaveType,
		Days:       days,
		Status:     domain.RequestPending,
		EventType:  EventTypeDirect,
	}

	var decision Decision
	err = s.withEmployee(ctx, employeeID, func(ctx context.Context, own []domain.LeaveRequest) error {
		if s.policy.RejectSelfOverlap {
			for _, r := range own {
				if (r.Status == domain.RequestApproved || r.Status == domain.RequestApproving) && r.Overlaps(startDate, endDate) {
					logger.Warn("request leave overlap detected",
						zap.String("employee_id", employeeID),
						zap.String("existing_request_id", r.RequestID),
					)
					return leaveerrors.ErrLeaveOverlap
				}
			}
		}
		var err error
		decision, err = s.decide(ctx, req, false)
		return err
	})
	if err != nil {
		return Decision{}, s.fail(ctx, "request leave failed", err, zap.String("employee_id", employeeID))
	}

	logger.Info("request leave decided",
		zap.String("employee_id", employeeID),
		zap.String("request_id", decision.RequestID),
		zap.String("status", decision.Status),
	)
	return decision, nil
}

func (s *service) CancelLeaveRequest(ctx context.Context, employeeID, startDate string) (Decision, error) {
	logger := s.log(ctx)
	logger.Debug("cancel leave", zap.String("employee_id", employeeID), zap.String("start_date", startDate))

	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return Decision{}, leaveerrors.ErrInvalidEmployeeID
	}
	if _, err := parseDate(startDate); err != nil {
		return Decision{}, err
	}

	var decision Decision
	err := s.withEmployee(ctx, employeeID, func(ctx context.Context, own []domain.LeaveRequest) error {
		var (
			match *domain.LeaveRequest
			seen  bool
		)
		for i := range own {
			r := own[i]
			if r.StartDate != startDate {
				continue
			}
			seen = true
			if r.Status != domain.RequestApproved {
				continue
			}
			if match == nil || r.CreatedAt.After(match.CreatedAt) {
				match = &r
			}
		}
		if match == nil {
			if seen {
				return leaveerrors.ErrInvalidStatusTransition
			}
			return leaveerrors.ErrLeaveNotFound
		}

		req, err := s.transition(ctx, match.RequestID, domain.RequestCancelling, nil)
		if err != nil {
			return err
		}
		req, err = s.finishCancellation(ctx, req)
		if err != nil {
			return err
		}
		decision = s.withBalance(ctx, decisionFor(req))
		return nil
	})
	if err != nil {
		return Decision{}, s.fail(ctx, "cancel leave failed", err, zap.String("employee_id", employeeID))
	}

	logger.Info("cancel leave success",
		zap.String("employee_id", employeeID),
		zap.String("request_id", decision.RequestID),
	)
	return decision, nil
}

func (s *service) ApplyApproval(ctx context.Context, ev EventInput) (Decision, error) {
	ev.EventType = EventRequestApprove
	return s.ApplyEvent(ctx, ev)
}

// ApplyEvent records a replayed event and, for approvals, decides it. A
// request that already reached a final state is reported back unchanged with
// Duplicate set.
func (s *service) ApplyEvent(ctx context.Context, ev EventInput) (Decision, error) {
	logger := s.log(ctx)
	logger.Debug("apply event",
		zap.String("request_id", ev.RequestID),
		zap.String("employee_id", ev.EmployeeID),
		zap.String("event_type", ev.EventType),
	)

	days, err := validateEvent(ev)
	if err != nil {
		logger.Warn("apply event validation failed", zap.String("request_id", ev.RequestID), zap.Error(err))
		return Decision{}, err
	}
	if ev.Days > 0 && ev.Days != days {
		logger.Warn("event days disagree with dates, using dates",
			zap.String("request_id", ev.RequestID),
			zap.Int("event_days", ev.Days),
			zap.Int("computed_days", days),
		)
	}
	leaveType := ev.LeaveType
	if leaveType == "" {
		leaveType = DefaultLeaveType
	}

	var decision Decision
	err = s.withEmployee(ctx, ev.EmployeeID, func(ctx context.Context, _ []domain.LeaveRequest) error {
		stored, err := s.store.Requests().Get(ctx, ev.RequestID)
		var req domain.LeaveRequest
		switch {
		case err == nil && stored.EmployeeID != ev.EmployeeID:
			return apperror.Wrap(
				fmt.Errorf("request %s belongs to %s", ev.RequestID, stored.EmployeeID),
				apperror.CodeInvalidInput, "event employee_id does not match stored request", http.StatusBadRequest,
			)
		case err == nil && stored.Status != domain.RequestPending:
			decision = decisionFor(stored)
			decision.Duplicate = true
			return nil
		case err == nil:
			req = stored
		case storage.IsNotFound(err):
			req = domain.LeaveRequest{
				RequestID:  ev.RequestID,
				EmployeeID: ev.EmployeeID,
				StartDate:  ev.StartDate,
				EndDate:    ev.EndDate,
				LeaveType:  leaveType,
				Days:       days,
				Status:     domain.RequestPending,
				EventType:  ev.EventType,
				CreatedAt:  ev.CreatedAt,
			}
			if err := s.store.Requests().Put(ctx, req); err != nil {
				return err
			}
			if req, err = s.store.Requests().Get(ctx, ev.RequestID); err != nil {
				return err
			}
		default:
			return err
		}

		if ev.EventType == EventRequestCreated {
			decision = decisionFor(req)
			return nil
		}
		decision, err = s.decide(ctx, req, true)
		return err
	})
	if err != nil {
		return Decision{}, s.fail(ctx, "apply event failed", err,
			zap.String("request_id", ev.RequestID),
			zap.String("employee_id", ev.EmployeeID),
		)
	}

	logger.Info("apply event done",
		zap.String("request_id", ev.RequestID),
		zap.String("status", decision.Status),
		zap.Bool("duplicate", decision.Duplicate),
	)
	return decision, nil
}

// withEmployee runs fn under the employee lock after finishing any saga a
// previous caller left behind. fn receives the employee's requests.
func (s *service) withEmployee(ctx context.Context, employeeID string, fn func(ctx context.Context, own []domain.LeaveRequest) error) error {
	unlock, err := s.locker.Lock(ctx, employeeID)
	if err != nil {
		return err
	}
	defer unlock()

	own, err := s.employeeRequests(ctx, employeeID)
	if err != nil {
		return err
	}
	resumed, err := s.recoverEmployee(ctx, employeeID, own)
	if err != nil {
		return err
	}
	if len(resumed) > 0 {
		if own, err = s.employeeRequests(ctx, employeeID); err != nil {
			return err
		}
	}
	return fn(ctx, own)
}

func (s *service) employeeRequests(ctx context.Context, employeeID string) ([]domain.LeaveRequest, error) {
	all, err := s.store.Requests().Scan(ctx)
	if err != nil {
		return nil, err
	}
	own := make([]domain.LeaveRequest, 0, 8)
	for _, r := range all {
		if r.EmployeeID == employeeID {
			own = append(own, r)
		}
	}
	return own, nil
}

// withBalance attaches the employee's remaining days when they can be read.
func (s *service) withBalance(ctx context.Context, d Decision) Decision {
	q, err := s.store.Quotas().Get(ctx, d.EmployeeID)
	if err == nil {
		avail := q.AvailableDays
		d.AvailableDays = &avail
	}
	return d
}

func (s *service) fail(ctx context.Context, msg string, err error, fields ...zap.Field) error {
	mapped := toAppError(err)
	httpErr := apperror.ToHTTP(mapped)
	fields = append(fields, zap.String("code", httpErr.Code), zap.Error(err))
	if httpErr.Status >= http.StatusInternalServerError {
		s.log(ctx).Error(msg, fields...)
	} else {
		s.log(ctx).Warn(msg, fields...)
	}
	return mapped
}

// toAppError classifies storage and locking failures for callers.
func toAppError(err error) error {
	var appErr *apperror.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, locker.ErrLockTimeout), storage.IsConflict(err):
		return leaveerrors.ErrConcurrencyConflict.Because(err)
	case storage.IsTransient(err), errors.Is(err, locker.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return apperror.ErrServiceUnavailable.Because(err)
	default:
		return apperror.ErrInternal.Because(err)
	}
}

func parseDate(v string) (time.Time, error) {
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, leaveerrors.ErrInvalidDateFormat
	}
	return t, nil
}

// leaveDays validates the window and returns its length, both ends included.
func leaveDays(startDate, endDate string) (int, error) {
	start, err := parseDate(startDate)
	if err != nil {
		return 0, err
	}
	end, err := parseDate(endDate)
	if err != nil {
		return 0, err
	}
	if end.Before(start) {
		return 0, leaveerrors.ErrInvalidDateRange
	}
	// Unix seconds keep windows longer than a time.Duration exact.
	return int((end.Unix()-start.Unix())/86400) + 1, nil
}

func validateEvent(ev EventInput) (int, error) {
	if strings.TrimSpace(ev.RequestID) == "" {
		return 0, leaveerrors.ErrInvalidRequestID
	}
	if strings.TrimSpace(ev.EmployeeID) == "" {
		return 0, leaveerrors.ErrInvalidEmployeeID
	}
	switch ev.EventType {
	case EventRequestCreated, EventRequestApprove:
	default:
		return 0, leaveerrors.ErrInvalidEventType
	}
	return leaveDays(ev.StartDate, ev.EndDate)
}
