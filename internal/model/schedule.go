package model

import "time"

// ScheduleStatus is the lifecycle state of a one-shot Schedule. Terminal
// states (Executed, Failed, Expired) are never resurrected to Pending.
type ScheduleStatus string

const (
	SchedulePending  ScheduleStatus = "pending"
	ScheduleExecuted ScheduleStatus = "executed"
	ScheduleFailed   ScheduleStatus = "failed"
	ScheduleExpired  ScheduleStatus = "expired"
)

// Schedule is a single future firing of a watering command.
type Schedule struct {
	ID         int64          `gorm:"primaryKey;autoIncrement"`
	DeviceID   string         `gorm:"size:64;not null;index"`
	FireAt     time.Time      `gorm:"not null;index"`
	DurationMS int            `gorm:"not null"`
	Status     ScheduleStatus `gorm:"size:16;not null;default:'pending'"`
	RetryCount int            `gorm:"not null;default:0"`
	LastError  string         `gorm:"size:256"`
	ExecutedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
