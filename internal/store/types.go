package store

import "time"

// CreateAlarmParams carries the fields needed to create a recurring Alarm.
type CreateAlarmParams struct {
	DeviceID   string
	Name       string
	TimeOfDay  string
	Days       []string
	DurationMS int
}

// CreateScheduleParams carries the fields needed to create a one-shot
// Schedule.
type CreateScheduleParams struct {
	DeviceID   string
	FireAt     time.Time
	DurationMS int
}
