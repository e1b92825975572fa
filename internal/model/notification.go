package model

import (
	"time"

	"gorm.io/datatypes"
)

type IntentKind string

const (
	// IntentMaintenanceDue notifies a user that an alarm fired.
	IntentMaintenanceDue IntentKind = "maintenance_due"
	// IntentTypeUsage bumps the usage counter of an event type.
	IntentTypeUsage IntentKind = "event_type_usage"
)

type IntentStatus string

const (
	IntentPending    IntentStatus = "pending"
	IntentProcessing IntentStatus = "processing"
	IntentSent       IntentStatus = "sent"
	IntentFailed     IntentStatus = "failed"
)

// NotificationIntent is an outbox row written in the same transaction as the
// machine change that produced it.
type NotificationIntent struct {
	ID            string            `gorm:"primaryKey;size:36"`
	MachineID     string            `gorm:"size:36;not null;index"`
	UserID        string            `gorm:"size:64;index"`
	Kind          IntentKind        `gorm:"size:32;not null"`
	Payload       datatypes.JSONMap `gorm:"not null"`
	Status        IntentStatus      `gorm:"size:16;not null;index:idx_intent_due,priority:1"`
	Attempts      int               `gorm:"not null;default:0"`
	ClaimToken    string            `gorm:"size:36"`
	LastError     string            `gorm:"type:text"`
	NextAttemptAt time.Time         `gorm:"not null;index:idx_intent_due,priority:2"`
	CreatedAt     time.Time         `gorm:"not null"`
	UpdatedAt     time.Time         `gorm:"not null"`
}
