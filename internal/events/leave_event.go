package events

import (
	"fmt"
	"time"
)

const (
	LeaveEventsTopic    = "leave-events"
	LeaveDecisionsTopic = "leave-decisions"
	LeaveDecisionStream = "leave:decisions"

	EventTypeRequestCreated  = "request_created"
	EventTypeRequestApproved = "request_approved"

	// DecisionError marks an event the engine could not decide on.
	DecisionError = "ERROR"
)

// LeaveEvent is one entry of the replayed leave log. Timestamps are kept as
// the producer wrote them.
type LeaveEvent struct {
	RequestID  string  `json:"request_id"`
	EmployeeID string  `json:"employee_id"`
	LeaveType  string  `json:"leave_type"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	Days       int     `json:"days"`
	EventType  string  `json:"event_type"`
	Status     string  `json:"status,omitempty"`
	CreatedAt  *string `json:"created_at"`
	ApprovedAt *string `json:"approved_at"`
}

// DecisionRecord is what the ingestor forwards downstream for every event.
type DecisionRecord struct {
	LeaveEvent
	DecisionStatus string    `json:"decision_status"`
	Reason         string    `json:"reason,omitempty"`
	Duplicate      bool      `json:"duplicate,omitempty"`
	ProcessedAt    time.Time `json:"processed_at"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the zone-less ISO form, read as UTC.
func ParseTimestamp(v string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}
