package model

import "time"

// PushSubscription holds the information for a browser push subscription
// owned by a user.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	UserID    string    `gorm:"size:64;not null;index"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
