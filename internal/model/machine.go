package model

import (
	"time"

	"gorm.io/datatypes"

	"fleet-history-backend/internal/alarm"
	"fleet-history-backend/internal/machine"
)

// Machine is the persisted aggregate. The three histories live in JSON
// columns of the same row so one row is one unit of consistency.
type Machine struct {
	ID                 string  `gorm:"primaryKey;size:36"`
	SerialNumber       string  `gorm:"uniqueIndex;size:64;not null"`
	Brand              string  `gorm:"size:128;not null"`
	ModelName          string  `gorm:"size:128;not null"`
	Status             string  `gorm:"size:32;not null;index"`
	OwnerID            string  `gorm:"size:64;not null;index"`
	AssignedProviderID string  `gorm:"size:64;index"`
	OperatingHours     float64 `gorm:"not null;default:0"`
	Year               int
	FuelType           string `gorm:"size:32"`
	Capacity           string `gorm:"size:64"`

	QuickChecks       datatypes.JSONSlice[machine.QuickCheckRecord] `gorm:"not null"`
	EventsHistory     datatypes.JSONSlice[machine.Event]            `gorm:"not null"`
	MaintenanceAlarms datatypes.JSONSlice[alarm.Alarm]              `gorm:"not null"`

	Version   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
