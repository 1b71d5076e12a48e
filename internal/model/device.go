package model

import "time"

// Device represents a registered pump controller.
//
// Online/PumpStatus are owned by the Session Hub at runtime and mirrored
// here asynchronously on state transitions; a row is created on first
// registration and never deleted by the core.
type Device struct {
	ID              string `gorm:"primaryKey;size:64"` // device_id, stored upper-case
	Online          bool   `gorm:"not null;default:false"`
	PumpStatus      string `gorm:"size:16;not null;default:'idle'"`
	LastAddr        string `gorm:"size:64"`
	ConnectionCount int64  `gorm:"not null;default:0"`
	LastSeen        time.Time
	LastHeartbeat   time.Time
	LastError       string `gorm:"size:256"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const (
	PumpIdle    = "idle"
	PumpRunning = "running"
)
