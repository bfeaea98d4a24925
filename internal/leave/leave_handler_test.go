package leave_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-leave-ledger/internal/domain"
	"go-leave-ledger/internal/leave"
	leaveerrors "go-leave-ledger/internal/leave/errors"
	"go-leave-ledger/internal/storage"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiEnvelope struct {
	Ok    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

func decodeEnvelope(t *testing.T, body []byte) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	err := json.Unmarshal(body, &env)
	assert.NoError(t, err)
	return env
}

type fakeLeaveService struct {
	requestLeaveFn func(ctx context.Context, employeeID, startDate, endDate, leaveType string) (leave.Decision, error)
	cancelFn       func(ctx context.Context, employeeID, startDate string) (leave.Decision, error)
	availabilityFn func(ctx context.Context, startDate, endDate string) (leave.Availability, error)
	balanceFn      func(ctx context.Context, employeeID string) (leave.Balance, error)
	listFn         func(ctx context.Context, employeeID string, page, limit int) (leave.RequestPage, error)
	employeesFn    func(ctx context.Context) ([]leave.EmployeeSummary, error)
	statsFn        func(ctx context.Context) (leave.Stats, error)
	reconcileFn    func(ctx context.Context) (leave.ReconcileReport, error)
}

func (f *fakeLeaveService) RequestLeave(ctx context.Context, employeeID, startDate, endDate, leaveType string) (leave.Decision, error) {
	return f.requestLeaveFn(ctx, employeeID, startDate, endDate, leaveType)
}
func (f *fakeLeaveService) CancelLeaveRequest(ctx context.Context, employeeID, startDate string) (leave.Decision, error) {
	return f.cancelFn(ctx, employeeID, startDate)
}
func (f *fakeLeaveService) CheckAvailabilityForDate(ctx context.Context, startDate, endDate string) (leave.Availability, error) {
	return f.availabilityFn(ctx, startDate, endDate)
}
func (f *fakeLeaveService) ApplyEvent(ctx context.Context, ev leave.EventInput) (leave.Decision, error) {
	panic("not used by the handler")
}
func (f *fakeLeaveService) ApplyApproval(ctx context.Context, ev leave.EventInput) (leave.Decision, error) {
	panic("not used by the handler")
}
func (f *fakeLeaveService) QueryBalance(ctx context.Context, employeeID string) (leave.Balance, error) {
	return f.balanceFn(ctx, employeeID)
}
func (f *fakeLeaveService) ListRequests(ctx context.Context, employeeID string, page, limit int) (leave.RequestPage, error) {
	return f.listFn(ctx, employeeID, page, limit)
}
func (f *fakeLeaveService) ListEmployees(ctx context.Context) ([]leave.EmployeeSummary, error) {
	return f.employeesFn(ctx)
}
func (f *fakeLeaveService) AvailabilityStats(ctx context.Context) (leave.Stats, error) {
	return f.statsFn(ctx)
}
func (f *fakeLeaveService) Reconcile(ctx context.Context) (leave.ReconcileReport, error) {
	return f.reconcileFn(ctx)
}
func (f *fakeLeaveService) EnsureCapacityCounter(ctx context.Context) error { return nil }

// adminOnly mirrors the default policy: employees get the self-service actions.
type adminOnly struct{}

func (adminOnly) Enforce(req domain.EnforceRequest) (bool, error) {
	switch req.Action {
	case leave.ActionGetAllEmployees, leave.ActionAvailabilityStats, "reconcile":
		return req.Role == domain.RoleAdmin, nil
	}
	return true, nil
}

func runCommand(t *testing.T, svc leave.Service, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := leave.NewHandler(svc, adminOnly{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	h.Execute(c)
	return w
}

func TestLeaveHandler_RequestLeave(t *testing.T) {
	t.Run("end date derived from days and default leave type", func(t *testing.T) {
		svc := &fakeLeaveService{
			requestLeaveFn: func(ctx context.Context, employeeID, startDate, endDate, leaveType string) (leave.Decision, error) {
				assert.Equal(t, "E001", employeeID)
				assert.Equal(t, "2025-03-10", startDate)
				assert.Equal(t, "2025-03-12", endDate)
				assert.Equal(t, "", leaveType)
				avail := 17
				return leave.Decision{Status: "APPROVED", RequestID: "R1", EmployeeID: employeeID, Days: 3, AvailableDays: &avail}, nil
			},
		}

		w := runCommand(t, svc, `{"action":"request_leave","employee_id":" E001 ","parameters":{"start_date":"2025-03-10","days":3}}`)

		assert.Equal(t, http.StatusOK, w.Code)
		env := decodeEnvelope(t, w.Body.Bytes())
		assert.True(t, env.Ok)
		var got leave.Decision
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, "APPROVED", got.Status)
		assert.Equal(t, "R1", got.RequestID)
		require.NotNil(t, got.AvailableDays)
		assert.Equal(t, 17, *got.AvailableDays)
	})

	t.Run("explicit end date wins over days", func(t *testing.T) {
		svc := &fakeLeaveService{
			requestLeaveFn: func(ctx context.Context, employeeID, startDate, endDate, leaveType string) (leave.Decision, error) {
				assert.Equal(t, "2025-03-11", endDate)
				assert.Equal(t, "Sick", leaveType)
				return leave.Decision{Status: "DENIED_CAPACITY", Reason: "Team capacity reached"}, nil
			},
		}

		w := runCommand(t, svc, `{"action":"request_leave","employee_id":"E001","parameters":{"start_date":"2025-03-10","end_date":"2025-03-11","days":9,"leave_type":"Sick"}}`)

		assert.Equal(t, http.StatusOK, w.Code)
		env := decodeEnvelope(t, w.Body.Bytes())
		assert.Contains(t, string(env.Data), "DENIED_CAPACITY")
	})

	t.Run("bad start date with days", func(t *testing.T) {
		w := runCommand(t, &fakeLeaveService{}, `{"action":"request_leave","employee_id":"E001","parameters":{"start_date":"10/03/2025","days":2}}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env := decodeEnvelope(t, w.Body.Bytes())
		assert.False(t, env.Ok)
		assert.Equal(t, leaveerrors.ErrInvalidDateFormat.Code, env.Error.Code)
	})

	t.Run("service conflict maps to 409", func(t *testing.T) {
		svc := &fakeLeaveService{
			requestLeaveFn: func(ctx context.Context, employeeID, startDate, endDate, leaveType string) (leave.Decision, error) {
				return leave.Decision{}, leaveerrors.ErrLeaveOverlap
			},
		}
		w := runCommand(t, svc, `{"action":"request_leave","employee_id":"E001","parameters":{"start_date":"2025-03-10"}}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unmapped storage error is 500", func(t *testing.T) {
		svc := &fakeLeaveService{
			requestLeaveFn: func(ctx context.Context, employeeID, startDate, endDate, leaveType string) (leave.Decision, error) {
				return leave.Decision{}, errors.New("boom")
			},
		}
		w := runCommand(t, svc, `{"action":"request_leave","employee_id":"E001","parameters":{"start_date":"2025-03-10"}}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestLeaveHandler_Validation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"action":`, http.StatusBadRequest},
		{"missing action", `{"employee_id":"E001"}`, http.StatusBadRequest},
		{"unknown action", `{"action":"delete_everything"}`, http.StatusBadRequest},
		{"negative days", `{"action":"request_leave","parameters":{"start_date":"2025-03-10","days":-1}}`, http.StatusBadRequest},
		{"admin action without admin", `{"action":"get_all_employees","is_admin":false}`, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := runCommand(t, &fakeLeaveService{}, tt.body)
			assert.Equal(t, tt.status, w.Code)
			env := decodeEnvelope(t, w.Body.Bytes())
			assert.False(t, env.Ok)
			require.NotNil(t, env.Error)
		})
	}
}

func TestLeaveHandler_Queries(t *testing.T) {
	svc := &fakeLeaveService{
		cancelFn: func(ctx context.Context, employeeID, startDate string) (leave.Decision, error) {
			if startDate != "2025-03-10" {
				return leave.Decision{}, leaveerrors.ErrLeaveNotFound
			}
			return leave.Decision{Status: "CANCELLED", EmployeeID: employeeID}, nil
		},
		balanceFn: func(ctx context.Context, employeeID string) (leave.Balance, error) {
			return leave.Balance{Status: "OK", EmployeeID: employeeID, AvailableDays: 12, TakenYTD: 8}, nil
		},
		listFn: func(ctx context.Context, employeeID string, page, limit int) (leave.RequestPage, error) {
			assert.Equal(t, 5, limit)
			return leave.RequestPage{
				Requests: []leave.RequestView{{RequestID: "R1", Status: "APPROVED"}},
				Total:    11, Page: page, Limit: limit,
			}, nil
		},
		availabilityFn: func(ctx context.Context, startDate, endDate string) (leave.Availability, error) {
			assert.Equal(t, "", endDate)
			return leave.Availability{Status: "OK", StartDate: startDate, EndDate: startDate, OnLeaveEmployees: []string{"E002"}, Available: 29, Total: 30}, nil
		},
		employeesFn: func(ctx context.Context) ([]leave.EmployeeSummary, error) {
			return []leave.EmployeeSummary{{EmployeeID: "E001", CurrentStatus: "AVAILABLE"}}, nil
		},
		statsFn: func(ctx context.Context) (leave.Stats, error) {
			return leave.Stats{Status: "OK", Total: 30, Available: 28, OnLeave: 2, AvailabilityPercentage: 93.33}, nil
		},
	}

	tests := []struct {
		name     string
		body     string
		status   int
		contains string
	}{
		{"cancel", `{"action":"cancel_leave","employee_id":"E001","parameters":{"start_date":"2025-03-10"}}`, http.StatusOK, `"CANCELLED"`},
		{"cancel unmatched", `{"action":"cancel_leave","employee_id":"E001","parameters":{"start_date":"2025-03-11"}}`, http.StatusNotFound, "NOT_FOUND"},
		{"balance", `{"action":"query_balance","employee_id":"E001"}`, http.StatusOK, `"available_days":12`},
		{"list", `{"action":"list_requests","employee_id":"E001","parameters":{"limit":5}}`, http.StatusOK, `"requests":[{`},
		{"list meta", `{"action":"list_requests","employee_id":"E001","parameters":{"limit":5,"page":2}}`, http.StatusOK, `"meta":{"total":11,"total_pages":3,"page":2,"page_size":5}`},
		{"availability", `{"action":"check_availability_for_date","parameters":{"start_date":"2025-03-10"}}`, http.StatusOK, `"on_leave_employees":["E002"]`},
		{"employees", `{"action":"get_all_employees","is_admin":true}`, http.StatusOK, `"employees":[{`},
		{"stats", `{"action":"get_availability_stats","is_admin":true}`, http.StatusOK, `"availability_percentage":93.33`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := runCommand(t, svc, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}
}

func TestLeaveHandler_Reconcile(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &fakeLeaveService{
			reconcileFn: func(ctx context.Context) (leave.ReconcileReport, error) {
				return leave.ReconcileReport{Scanned: 1, Completed: []string{"R1"}, Denied: []string{}, Failed: []string{}}, nil
			},
		}
		h := leave.NewHandler(svc, adminOnly{})
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile", nil)

		h.Reconcile(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"completed":["R1"]`)
	})

	t.Run("unexpected error is 500", func(t *testing.T) {
		svc := &fakeLeaveService{
			reconcileFn: func(ctx context.Context) (leave.ReconcileReport, error) {
				return leave.ReconcileReport{}, storage.ErrNotFound
			},
		}
		h := leave.NewHandler(svc, adminOnly{})
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile", nil)

		h.Reconcile(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
