package domain

import "time"

type EngineerStatus string

const (
	EngineerAvailable EngineerStatus = "AVAILABLE"
	EngineerOnLeave   EngineerStatus = "ON_LEAVE"
)

// Saga operations recorded in Quota.Ledger.
const (
	OpDebit  = "DEBIT"
	OpRefund = "REFUND"
)

type Engineer struct {
	EmployeeID    string         `gorm:"type:varchar(100);primaryKey" json:"employee_id"`
	CurrentStatus EngineerStatus `gorm:"type:varchar(20);not null;default:'AVAILABLE'" json:"current_status"`
	OnLeaveFrom   *string        `gorm:"type:varchar(10)" json:"on_leave_from"`
	OnLeaveTo     *string        `gorm:"type:varchar(10)" json:"on_leave_to"`

	// PendingRequestID marks a saga in flight for this employee. It is set
	// before the quota is touched and cleared by the saga's last engineer write.
	PendingRequestID string `gorm:"type:varchar(100);not null;default:''" json:"pending_request_id,omitempty"`

	Version   int64     `gorm:"not null;default:0" json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Engineer) TableName() string { return "engineers" }

func (e *Engineer) RecordKey() string        { return e.EmployeeID }
func (e *Engineer) RecordVersion() int64     { return e.Version }
func (e *Engineer) SetRecordVersion(v int64) { e.Version = v }
func (e *Engineer) Touch(now time.Time)      { e.UpdatedAt = now }

// NewAvailableEngineer is the default record used when an employee has no
// availability row yet.
func NewAvailableEngineer(employeeID string) Engineer {
	return Engineer{EmployeeID: employeeID, CurrentStatus: EngineerAvailable}
}

func (e Engineer) IsOnLeave() bool {
	return e.CurrentStatus == EngineerOnLeave
}

// OnLeaveWindow reports whether the engineer's current leave window is exactly [from, to].
func (e Engineer) OnLeaveWindow(from, to string) bool {
	if e.OnLeaveFrom == nil || e.OnLeaveTo == nil {
		return false
	}
	return *e.OnLeaveFrom == from && *e.OnLeaveTo == to
}
