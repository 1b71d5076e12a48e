package model

import "time"

// Alarm is a recurring watering schedule bound to a device.
//
// Days is stored as a comma-separated list of three-letter weekday codes
// ("mon,wed,fri") since GORM has no native set type; timeofday.ParseDays
// provides the parsed view.
type Alarm struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	DeviceID       string `gorm:"size:64;not null;index"`
	Name           string `gorm:"size:128;not null"`
	TimeOfDay      string `gorm:"size:5;not null"` // "HH:MM", server-local
	Days           string `gorm:"size:32;not null"`
	DurationMS     int    `gorm:"not null"`
	IsActive       bool   `gorm:"not null;default:true"`
	LastExecuted   *time.Time
	NextExecution  time.Time `gorm:"not null;index"`
	ExecutionCount int64     `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Weekday is a day-of-week code as used in Alarm.Days.
type Weekday string

const (
	Mon Weekday = "mon"
	Tue Weekday = "tue"
	Wed Weekday = "wed"
	Thu Weekday = "thu"
	Fri Weekday = "fri"
	Sat Weekday = "sat"
	Sun Weekday = "sun"
)
