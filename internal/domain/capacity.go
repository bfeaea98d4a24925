package domain

import "time"

// CapacityCounterName is the single counter row tracking engineers on leave.
const CapacityCounterName = "engineers_on_leave"

type CapacityCounter struct {
	Name      string    `gorm:"type:varchar(64);primaryKey" json:"name"`
	OnLeave   int       `gorm:"type:int;not null;default:0" json:"on_leave"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CapacityCounter) TableName() string { return "capacity_counters" }
