package leave

import (
	"context"
	"math"
	"sort"
	"strings"

	"go-leave-ledger/internal/domain"
	leaveerrors "go-leave-ledger/internal/leave/errors"
	"go-leave-ledger/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CheckAvailabilityForDate counts distinct employees with an approved request
// overlapping [startDate, endDate]. Identical concurrent queries share one scan.
func (s *service) CheckAvailabilityForDate(ctx context.Context, startDate, endDate string) (Availability, error) {
	if endDate == "" {
		endDate = startDate
	}
	if _, err := leaveDays(startDate, endDate); err != nil {
		return Availability{}, err
	}

	ch := s.queries.DoChan("availability:"+startDate+":"+endDate, func() (any, error) {
		// Callers that join this flight must not see the first caller's cancellation.
		requests, err := s.store.Requests().Scan(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		seen := make(map[string]struct{})
		for _, r := range requests {
			if r.Status == domain.RequestApproved && r.Overlaps(startDate, endDate) {
				seen[r.EmployeeID] = struct{}{}
			}
		}
		onLeave := make([]string, 0, len(seen))
		for id := range seen {
			onLeave = append(onLeave, id)
		}
		sort.Strings(onLeave)
		return Availability{
			Status:           StatusOK,
			StartDate:        startDate,
			EndDate:          endDate,
			OnLeaveEmployees: onLeave,
			OnLeaveCount:     len(onLeave),
			Available:        s.policy.TotalEngineers - len(onLeave),
			Total:            s.policy.TotalEngineers,
		}, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Availability{}, s.fail(ctx, "check availability abandoned", ctx.Err(),
			zap.String("start_date", startDate),
			zap.String("end_date", endDate),
		)
	case res = <-ch:
	}
	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		return Availability{}, s.fail(ctx, "check availability failed", err,
			zap.String("start_date", startDate),
			zap.String("end_date", endDate),
		)
	}
	s.log(ctx).Debug("availability computed",
		zap.String("start_date", startDate),
		zap.String("end_date", endDate),
		zap.Bool("shared", shared),
	)

	a := v.(Availability)
	a.OnLeaveEmployees = append([]string(nil), a.OnLeaveEmployees...)
	return a, nil
}

func (s *service) QueryBalance(ctx context.Context, employeeID string) (Balance, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return Balance{}, leaveerrors.ErrInvalidEmployeeID
	}
	q, err := s.store.Quotas().Get(ctx, employeeID)
	if storage.IsNotFound(err) {
		return Balance{}, leaveerrors.ErrEmployeeNotFound
	}
	if err != nil {
		return Balance{}, s.fail(ctx, "query balance failed", err, zap.String("employee_id", employeeID))
	}
	return Balance{
		Status:        StatusOK,
		EmployeeID:    employeeID,
		AvailableDays: q.AvailableDays,
		TakenYTD:      q.TakenYTD,
	}, nil
}

// ListRequests returns one page of the employee's requests, latest start
// date first. Total counts every request the employee has.
func (s *service) ListRequests(ctx context.Context, employeeID string, page, limit int) (RequestPage, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return RequestPage{}, leaveerrors.ErrInvalidEmployeeID
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if page <= 0 {
		page = 1
	}
	own, err := s.employeeRequests(ctx, employeeID)
	if err != nil {
		return RequestPage{}, s.fail(ctx, "list requests failed", err, zap.String("employee_id", employeeID))
	}
	sort.SliceStable(own, func(i, j int) bool {
		if own[i].StartDate != own[j].StartDate {
			return own[i].StartDate > own[j].StartDate
		}
		return own[i].CreatedAt.After(own[j].CreatedAt)
	})

	total := len(own)
	from := total
	if page-1 <= total/limit {
		from = min((page-1)*limit, total)
	}
	to := min(from+limit, total)
	out := make([]RequestView, 0, to-from)
	for _, r := range own[from:to] {
		out = append(out, mapToRequestView(r))
	}
	return RequestPage{Requests: out, Total: total, Page: page, Limit: limit}, nil
}

// ListEmployees joins availability rows with quotas, ordered by id.
func (s *service) ListEmployees(ctx context.Context) ([]EmployeeSummary, error) {
	engineers, err := s.store.Engineers().Scan(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list employees failed", err)
	}
	quotas, err := s.store.Quotas().Scan(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list employees failed", err)
	}

	byID := make(map[string]*EmployeeSummary, len(quotas))
	for _, e := range engineers {
		byID[e.EmployeeID] = &EmployeeSummary{
			EmployeeID:    e.EmployeeID,
			CurrentStatus: string(e.CurrentStatus),
			OnLeaveFrom:   e.OnLeaveFrom,
			OnLeaveTo:     e.OnLeaveTo,
		}
	}
	for _, q := range quotas {
		sum, ok := byID[q.EmployeeID]
		if !ok {
			sum = &EmployeeSummary{EmployeeID: q.EmployeeID, CurrentStatus: string(domain.EngineerAvailable)}
			byID[q.EmployeeID] = sum
		}
		sum.AnnualAllowance = q.AnnualAllowance
		sum.AvailableDays = q.AvailableDays
		sum.TakenYTD = q.TakenYTD
	}

	out := make([]EmployeeSummary, 0, len(byID))
	for _, sum := range byID {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func (s *service) AvailabilityStats(ctx context.Context) (Stats, error) {
	engineers, err := s.store.Engineers().Scan(ctx)
	if err != nil {
		return Stats{}, s.fail(ctx, "availability stats failed", err)
	}
	onLeave := 0
	for _, e := range engineers {
		if e.IsOnLeave() {
			onLeave++
		}
	}
	total := s.policy.TotalEngineers
	stats := Stats{
		Status:    StatusOK,
		Total:     total,
		Available: total - onLeave,
		OnLeave:   onLeave,
	}
	if total > 0 {
		stats.AvailabilityPercentage = math.Round(float64(stats.Available)/float64(total)*10000) / 100
	}
	if c, err := s.store.Capacity().Load(ctx); err == nil {
		stats.CounterOnLeave = c.OnLeave
	} else if !storage.IsNotFound(err) {
		return Stats{}, s.fail(ctx, "availability stats failed", err)
	}
	return stats, nil
}

// Reconcile finishes every saga left in flight, employee by employee.
func (s *service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	logger := s.log(ctx)
	report := ReconcileReport{Completed: []string{}, Denied: []string{}, Failed: []string{}}

	requests, err := s.store.Requests().Scan(ctx)
	if err != nil {
		return report, s.fail(ctx, "reconcile scan failed", err)
	}
	engineers, err := s.store.Engineers().Scan(ctx)
	if err != nil {
		return report, s.fail(ctx, "reconcile scan failed", err)
	}

	pending := make(map[string]struct{})
	for _, r := range requests {
		if r.Status.InFlight() {
			pending[r.EmployeeID] = struct{}{}
		}
	}
	for _, e := range engineers {
		if e.PendingRequestID != "" {
			pending[e.EmployeeID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		report.Scanned++
		resumed, err := s.reconcileEmployee(ctx, id)
		if err != nil {
			logger.Error("reconcile employee failed", zap.String("employee_id", id), zap.Error(err))
			report.Failed = append(report.Failed, id)
			continue
		}
		for _, r := range resumed {
			switch r.Status {
			case domain.RequestDeniedBalance, domain.RequestDeniedCapacity:
				report.Denied = append(report.Denied, r.RequestID)
			default:
				report.Completed = append(report.Completed, r.RequestID)
			}
		}
	}

	logger.Info("reconcile done",
		zap.Int("scanned", report.Scanned),
		zap.Int("completed", len(report.Completed)),
		zap.Int("denied", len(report.Denied)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

func (s *service) reconcileEmployee(ctx context.Context, employeeID string) ([]domain.LeaveRequest, error) {
	unlock, err := s.locker.Lock(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	own, err := s.employeeRequests(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return s.recoverEmployee(ctx, employeeID, own)
}

// EnsureCapacityCounter seeds the counter from the engineers currently on
// leave when it does not exist yet.
func (s *service) EnsureCapacityCounter(ctx context.Context) error {
	_, err := s.store.Capacity().Load(ctx)
	if err == nil {
		return nil
	}
	if !storage.IsNotFound(err) {
		return err
	}

	engineers, err := s.store.Engineers().Scan(ctx)
	if err != nil {
		return err
	}
	onLeave := 0
	for _, e := range engineers {
		if e.IsOnLeave() {
			onLeave++
		}
	}
	created, err := s.store.Capacity().Init(ctx, onLeave)
	if err != nil {
		return err
	}
	if created {
		s.log(ctx).Info("capacity counter initialised", zap.Int("on_leave", onLeave))
	}
	return nil
}
