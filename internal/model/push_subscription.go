package model

import "time"

// PushSubscription holds the information for a browser Web Push
// subscription. DeviceID is empty when the subscriber wants alerts for
// every device.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	DeviceID  string    `gorm:"size:64;index"`
	CreatedAt time.Time `gorm:"not null"`
}
