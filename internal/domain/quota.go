package domain

import (
	"fmt"
	"maps"
	"time"
)

type Quota struct {
	EmployeeID      string `gorm:"type:varchar(100);primaryKey" json:"employee_id"`
	AnnualAllowance int    `gorm:"type:int;not null;default:0" json:"annual_allowance"`
	CarriedOver     int    `gorm:"type:int;not null;default:0" json:"carried_over"`
	TakenYTD        int    `gorm:"column:taken_ytd;type:int;not null;default:0" json:"taken_ytd"`
	AvailableDays   int    `gorm:"type:int;not null;default:0" json:"available_days"`

	// Ledger records, per request, the last saga step applied to this quota
	// so a resumed saga never debits or refunds the same request twice.
	Ledger map[string]string `gorm:"type:text;serializer:json" json:"ledger,omitempty"`

	Version   int64     `gorm:"not null;default:0" json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Quota) TableName() string { return "leave_quotas" }

func (q *Quota) RecordKey() string        { return q.EmployeeID }
func (q *Quota) RecordVersion() int64     { return q.Version }
func (q *Quota) SetRecordVersion(v int64) { q.Version = v }
func (q *Quota) Touch(now time.Time)      { q.UpdatedAt = now }

// NewQuota builds a quota whose available days follow the ledger identity.
func NewQuota(employeeID string, annualAllowance, carriedOver, takenYTD int) Quota {
	return Quota{
		EmployeeID:      employeeID,
		AnnualAllowance: annualAllowance,
		CarriedOver:     carriedOver,
		TakenYTD:        takenYTD,
		AvailableDays:   annualAllowance + carriedOver - takenYTD,
	}
}

// Applied reports whether op is the last step recorded for requestID.
func (q Quota) Applied(requestID, op string) bool {
	return q.Ledger[requestID] == op
}

// Debit consumes days for requestID. A request is debited at most once: the
// call is a no-op once the ledger holds any step for it.
func (q *Quota) Debit(requestID string, days int) error {
	if _, seen := q.Ledger[requestID]; seen {
		return nil
	}
	if days > q.AvailableDays {
		return fmt.Errorf("%w: available %d, requested %d", ErrInsufficientBalance, q.AvailableDays, days)
	}
	q.TakenYTD += days
	q.AvailableDays -= days
	q.record(requestID, OpDebit)
	return nil
}

// Refund returns days taken by requestID. It is a no-op when already refunded.
func (q *Quota) Refund(requestID string, days int) {
	if q.Applied(requestID, OpRefund) {
		return
	}
	q.TakenYTD -= days
	q.AvailableDays += days
	q.record(requestID, OpRefund)
}

// record writes a copy of the ledger so values handed out earlier never change.
func (q *Quota) record(requestID, op string) {
	ledger := maps.Clone(q.Ledger)
	if ledger == nil {
		ledger = make(map[string]string, 1)
	}
	ledger[requestID] = op
	q.Ledger = ledger
}

// Consistent checks available_days == annual_allowance + carried_over - taken_ytd and non-negativity.
func (q Quota) Consistent() bool {
	return q.AvailableDays == q.AnnualAllowance+q.CarriedOver-q.TakenYTD && q.AvailableDays >= 0
}
