package domain

import (
	"errors"
	"time"
)

type RequestStatus string

const (
	RequestPending        RequestStatus = "PENDING"
	RequestApproving      RequestStatus = "APPROVING"
	RequestApproved       RequestStatus = "APPROVED"
	RequestDeniedBalance  RequestStatus = "DENIED_BALANCE"
	RequestDeniedCapacity RequestStatus = "DENIED_CAPACITY"
	RequestCancelling     RequestStatus = "CANCELLING"
	RequestCancelled      RequestStatus = "CANCELLED"
)

var ErrInsufficientBalance = errors.New("insufficient leave balance")

type LeaveRequest struct {
	RequestID  string        `gorm:"type:varchar(100);primaryKey" json:"request_id"`
	EmployeeID string        `gorm:"type:varchar(100);not null;index:idx_leave_requests_employee_start" json:"employee_id"`
	StartDate  string        `gorm:"type:varchar(10);not null;index:idx_leave_requests_employee_start" json:"start_date"`
	EndDate    string        `gorm:"type:varchar(10);not null" json:"end_date"`
	LeaveType  string        `gorm:"type:varchar(50);not null;default:'Vacation'" json:"leave_type"`
	Days       int           `gorm:"type:int;not null;default:1" json:"days"`
	Status     RequestStatus `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	Reason     string        `gorm:"type:text" json:"reason,omitempty"`
	EventType  string        `gorm:"type:varchar(30)" json:"event_type,omitempty"`

	// SlotHeld is true while this request owns one of the team capacity slots.
	SlotHeld bool `gorm:"not null;default:false" json:"slot_held,omitempty"`

	Version   int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (LeaveRequest) TableName() string { return "leave_requests" }

func (r *LeaveRequest) RecordKey() string        { return r.RequestID }
func (r *LeaveRequest) RecordVersion() int64     { return r.Version }
func (r *LeaveRequest) SetRecordVersion(v int64) { r.Version = v }

// Touch stamps the modification time, and the creation time on first write.
func (r *LeaveRequest) Touch(now time.Time) {
	r.UpdatedAt = now
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
}

// IsTerminal reports whether the status is a final decision. APPROVED is
// terminal for decision purposes even though it may later be cancelled.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestApproved, RequestDeniedBalance, RequestDeniedCapacity, RequestCancelled:
		return true
	default:
		return false
	}
}

func (s RequestStatus) InFlight() bool {
	return s == RequestApproving || s == RequestCancelling
}

// CanTransition encodes the monotonic request lifecycle.
func CanTransition(from, to RequestStatus) bool {
	switch from {
	case RequestPending:
		return to == RequestApproving || to == RequestDeniedBalance || to == RequestDeniedCapacity
	case RequestApproving:
		return to == RequestApproved || to == RequestDeniedBalance
	case RequestApproved:
		return to == RequestCancelling
	case RequestCancelling:
		return to == RequestCancelled
	default:
		return false
	}
}

// Overlaps applies the closed-interval test start <= otherEnd && end >= otherStart
// on ISO dates, which order lexicographically.
func (r LeaveRequest) Overlaps(start, end string) bool {
	return r.StartDate <= end && r.EndDate >= start
}
