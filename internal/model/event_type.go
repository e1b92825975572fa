package model

import "time"

// EventType is an entry of the crowdsourced event-type catalog.
type EventType struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Name           string    `gorm:"size:64;not null" json:"name"`
	NormalizedName string    `gorm:"size:64;not null;uniqueIndex:idx_event_type_name_lang" json:"-"`
	Language       string    `gorm:"size:8;not null;uniqueIndex:idx_event_type_name_lang" json:"language"`
	UsageCount     int64     `gorm:"not null;default:0" json:"usageCount"`
	IsSystem       bool      `gorm:"not null;default:false" json:"isSystem"`
	CreatedAt      time.Time `gorm:"not null" json:"createdAt"`
}
