package leave

import (
	"time"

	"go-leave-ledger/internal/domain"
)

const (
	ActionRequestLeave      = "request_leave"
	ActionCancelLeave       = "cancel_leave"
	ActionQueryBalance      = "query_balance"
	ActionListRequests      = "list_requests"
	ActionCheckAvailability = "check_availability_for_date"
	ActionGetAllEmployees   = "get_all_employees"
	ActionAvailabilityStats = "get_availability_stats"

	DefaultLeaveType    = "Vacation"
	DefaultListLimit    = 20
	EventRequestCreated = "request_created"
	EventRequestApprove = "request_approved"

	// StatusOK and StatusError are outcome labels that are not request states.
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Command is the structured instruction produced upstream of the API.
type Command struct {
	Action     string     `json:"action" binding:"required"`
	EmployeeID *string    `json:"employee_id"`
	IsAdmin    bool       `json:"is_admin"`
	Parameters Parameters `json:"parameters"`
}

type Parameters struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	LeaveType string `json:"leave_type"`
	Days      int    `json:"days" binding:"omitempty,min=1"`
	Limit     int    `json:"limit" binding:"omitempty,min=1,max=500"`
	Page      int    `json:"page" binding:"omitempty,min=1"`
}

// EventInput is a replayed leave event as the engine sees it.
type EventInput struct {
	RequestID  string
	EmployeeID string
	EventType  string
	StartDate  string
	EndDate    string
	LeaveType  string
	Days       int
	CreatedAt  time.Time
}

// Decision is the outcome of a leave request, cancellation or event.
type Decision struct {
	Status        string `json:"status"`
	RequestID     string `json:"request_id,omitempty"`
	EmployeeID    string `json:"employee_id"`
	StartDate     string `json:"start_date,omitempty"`
	EndDate       string `json:"end_date,omitempty"`
	LeaveType     string `json:"leave_type,omitempty"`
	Days          int    `json:"days,omitempty"`
	Reason        string `json:"reason,omitempty"`
	AvailableDays *int   `json:"available_days,omitempty"`
	Duplicate     bool   `json:"duplicate,omitempty"`
}

func (d Decision) Approved() bool {
	return d.Status == string(domain.RequestApproved)
}

type Balance struct {
	Status        string `json:"status"`
	EmployeeID    string `json:"employee_id"`
	AvailableDays int    `json:"available_days"`
	TakenYTD      int    `json:"taken_ytd"`
}

type Availability struct {
	Status           string   `json:"status"`
	StartDate        string   `json:"start_date"`
	EndDate          string   `json:"end_date"`
	OnLeaveEmployees []string `json:"on_leave_employees"`
	OnLeaveCount     int      `json:"on_leave_count"`
	Available        int      `json:"available"`
	Total            int      `json:"total"`
}

type RequestView struct {
	RequestID string `json:"request_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	LeaveType string `json:"leave_type"`
	Days      int    `json:"days"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

type RequestPage struct {
	Requests []RequestView
	Total    int
	Page     int
	Limit    int
}

type EmployeeSummary struct {
	EmployeeID      string  `json:"employee_id"`
	CurrentStatus   string  `json:"current_status"`
	OnLeaveFrom     *string `json:"on_leave_from"`
	OnLeaveTo       *string `json:"on_leave_to"`
	AnnualAllowance int     `json:"annual_allowance"`
	AvailableDays   int     `json:"available_days"`
	TakenYTD        int     `json:"taken_ytd"`
}

type Stats struct {
	Status                 string  `json:"status"`
	Total                  int     `json:"total"`
	Available              int     `json:"available"`
	OnLeave                int     `json:"on_leave"`
	AvailabilityPercentage float64 `json:"availability_percentage"`
	CounterOnLeave         int     `json:"counter_on_leave"`
}

// ReconcileReport summarises one recovery pass.
type ReconcileReport struct {
	Scanned   int      `json:"scanned"`
	Completed []string `json:"completed"`
	Denied    []string `json:"denied"`
	Failed    []string `json:"failed"`
}

func mapToRequestView(r domain.LeaveRequest) RequestView {
	return RequestView{
		RequestID: r.RequestID,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
		LeaveType: r.LeaveType,
		Days:      r.Days,
		Status:    string(r.Status),
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func decisionFor(r domain.LeaveRequest) Decision {
	return Decision{
		Status:     string(r.Status),
		RequestID:  r.RequestID,
		EmployeeID: r.EmployeeID,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
		LeaveType:  r.LeaveType,
		Days:       r.Days,
		Reason:     r.Reason,
	}
}
