package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"waterhub/internal/apierr"
	"waterhub/internal/model"
	"waterhub/internal/timeofday"
)

// minDurationMS and maxDurationMS bound a watering command's duration, in
// milliseconds, per the data model's duration_ms invariant.
const (
	minDurationMS = 1000
	maxDurationMS = 300000
)

func validateDurationMS(d int) error {
	if d < minDurationMS || d > maxDurationMS {
		return fmt.Errorf("%w: duration_ms must be between %d and %d, got %d", apierr.ErrValidation, minDurationMS, maxDurationMS, d)
	}
	return nil
}

// Store defines the interface for all database operations the Session
// Hub, Command Router, and Alarm Engine rely on. Implementations must
// guarantee per-row monotonicity of ConnectionCount and ExecutionCount
// under concurrent writers.
type Store interface {
	RegisterOrTouchDevice(ctx context.Context, id, addr string) (model.Device, error)
	SetDeviceStatus(ctx context.Context, id string, online *bool, pump *string, lastSeen time.Time) error
	ListDevices(ctx context.Context) ([]model.Device, error)
	FindDevice(ctx context.Context, id string) (model.Device, error)

	ListAlarms(ctx context.Context, deviceID string) ([]model.Alarm, error)
	CreateAlarm(ctx context.Context, params CreateAlarmParams) (model.Alarm, error)
	ToggleAlarm(ctx context.Context, id int64) (model.Alarm, error)
	DeleteAlarm(ctx context.Context, id int64) error
	FindDueAlarms(ctx context.Context, now time.Time) ([]model.Alarm, error)
	UpdateAlarmAfterFire(ctx context.Context, id int64, firedAt *time.Time, nextExecution time.Time, incrementExecution bool) error

	CreateSchedule(ctx context.Context, params CreateScheduleParams) (model.Schedule, error)
	ListPendingSchedules(ctx context.Context, deviceID string) ([]model.Schedule, error)
	ListDueSchedules(ctx context.Context, now time.Time) ([]model.Schedule, error)
	MarkSchedule(ctx context.Context, id int64, status model.ScheduleStatus, errMsg string) error

	PutPushSubscription(ctx context.Context, sub model.PushSubscription) error
	DeletePushSubscription(ctx context.Context, endpoint string) error
	ListPushSubscriptions(ctx context.Context, deviceID string) ([]model.PushSubscription, error)

	DB() *gorm.DB
}

// gormStore implements Store using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// RegisterOrTouchDevice creates the Device row on first contact or touches
// LastAddr/LastSeen on subsequent ones. The device id is normalized to
// upper-case per the data model's case-insensitivity rule.
func (s *gormStore) RegisterOrTouchDevice(ctx context.Context, id, addr string) (model.Device, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	now := time.Now().UTC()

	device := model.Device{
		ID:         id,
		LastAddr:   addr,
		LastSeen:   now,
		PumpStatus: model.PumpIdle,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_addr", "last_seen", "updated_at"}),
	}).Create(&device).Error
	if err != nil {
		return model.Device{}, fmt.Errorf("register or touch device %q: %w", id, err)
	}

	var stored model.Device
	if err := s.db.WithContext(ctx).First(&stored, "id = ?", id).Error; err != nil {
		return model.Device{}, fmt.Errorf("reload device %q: %w", id, err)
	}
	return stored, nil
}

// SetDeviceStatus mirrors Session Hub connectivity transitions into the
// Store. It increments ConnectionCount atomically only when the caller
// explicitly flips Online to true (a fresh admit); see Hub.AdmitDevice.
func (s *gormStore) SetDeviceStatus(ctx context.Context, id string, online *bool, pump *string, lastSeen time.Time) error {
	id = strings.ToUpper(strings.TrimSpace(id))
	updates := map[string]any{"last_seen": lastSeen}
	if online != nil {
		updates["online"] = *online
		if *online {
			updates["connection_count"] = gorm.Expr("connection_count + 1")
		}
	}
	if pump != nil {
		updates["pump_status"] = *pump
	}
	return s.db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", id).Updates(updates).Error
}

func (s *gormStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	if err := s.db.WithContext(ctx).Order("id").Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

func (s *gormStore) FindDevice(ctx context.Context, id string) (model.Device, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	var device model.Device
	err := s.db.WithContext(ctx).First(&device, "id = ?", id).Error
	return device, err
}

func (s *gormStore) ListAlarms(ctx context.Context, deviceID string) ([]model.Alarm, error) {
	var alarms []model.Alarm
	q := s.db.WithContext(ctx).Order("time_of_day")
	if deviceID != "" {
		q = q.Where("device_id = ?", strings.ToUpper(deviceID))
	}
	if err := q.Find(&alarms).Error; err != nil {
		return nil, err
	}
	return alarms, nil
}

func (s *gormStore) CreateAlarm(ctx context.Context, params CreateAlarmParams) (model.Alarm, error) {
	if err := validateDurationMS(params.DurationMS); err != nil {
		return model.Alarm{}, err
	}
	next, err := timeofday.ComputeNext(params.TimeOfDay, params.Days, time.Now())
	if err != nil {
		return model.Alarm{}, err
	}
	alarm := model.Alarm{
		DeviceID:      strings.ToUpper(params.DeviceID),
		Name:          params.Name,
		TimeOfDay:     params.TimeOfDay,
		Days:          strings.Join(params.Days, ","),
		DurationMS:    params.DurationMS,
		IsActive:      true,
		NextExecution: next,
	}
	if err := s.db.WithContext(ctx).Create(&alarm).Error; err != nil {
		return model.Alarm{}, err
	}
	return alarm, nil
}

func (s *gormStore) ToggleAlarm(ctx context.Context, id int64) (model.Alarm, error) {
	var alarm model.Alarm
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&alarm, "id = ?", id).Error; err != nil {
			return err
		}
		alarm.IsActive = !alarm.IsActive
		if alarm.IsActive {
			next, err := timeofday.ComputeNext(alarm.TimeOfDay, strings.Split(alarm.Days, ","), time.Now())
			if err != nil {
				return err
			}
			alarm.NextExecution = next
		}
		return tx.Save(&alarm).Error
	})
	return alarm, err
}

func (s *gormStore) DeleteAlarm(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&model.Alarm{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindDueAlarms returns every active alarm whose NextExecution <= now, in
// deterministic ascending order by NextExecution, then by id — the only
// ordering guarantee the Alarm Engine relies on.
func (s *gormStore) FindDueAlarms(ctx context.Context, now time.Time) ([]model.Alarm, error) {
	var alarms []model.Alarm
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND next_execution <= ?", true, now).
		Order("next_execution ASC, id ASC").
		Find(&alarms).Error
	return alarms, err
}

// UpdateAlarmAfterFire advances NextExecution and, when firedAt is set,
// stamps LastExecuted and atomically increments ExecutionCount.
func (s *gormStore) UpdateAlarmAfterFire(ctx context.Context, id int64, firedAt *time.Time, nextExecution time.Time, incrementExecution bool) error {
	updates := map[string]any{"next_execution": nextExecution}
	if firedAt != nil {
		updates["last_executed"] = *firedAt
	}
	if incrementExecution {
		updates["execution_count"] = gorm.Expr("execution_count + 1")
	}
	return s.db.WithContext(ctx).Model(&model.Alarm{}).Where("id = ?", id).Updates(updates).Error
}

func (s *gormStore) CreateSchedule(ctx context.Context, params CreateScheduleParams) (model.Schedule, error) {
	if err := validateDurationMS(params.DurationMS); err != nil {
		return model.Schedule{}, err
	}
	schedule := model.Schedule{
		DeviceID:   strings.ToUpper(params.DeviceID),
		FireAt:     params.FireAt,
		DurationMS: params.DurationMS,
		Status:     model.SchedulePending,
	}
	if err := s.db.WithContext(ctx).Create(&schedule).Error; err != nil {
		return model.Schedule{}, err
	}
	return schedule, nil
}

func (s *gormStore) ListPendingSchedules(ctx context.Context, deviceID string) ([]model.Schedule, error) {
	var schedules []model.Schedule
	q := s.db.WithContext(ctx).Where("status = ?", model.SchedulePending).Order("fire_at")
	if deviceID != "" {
		q = q.Where("device_id = ?", strings.ToUpper(deviceID))
	}
	if err := q.Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func (s *gormStore) ListDueSchedules(ctx context.Context, now time.Time) ([]model.Schedule, error) {
	var schedules []model.Schedule
	err := s.db.WithContext(ctx).
		Where("status = ? AND fire_at <= ?", model.SchedulePending, now).
		Order("fire_at ASC, id ASC").
		Find(&schedules).Error
	return schedules, err
}

// MarkSchedule transitions a Schedule to a terminal status. No-op
// (returns an error) if the row is already terminal, enforcing the
// no-resurrection invariant.
func (s *gormStore) MarkSchedule(ctx context.Context, id int64, status model.ScheduleStatus, errMsg string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&model.Schedule{}).
		Where("id = ? AND status = ?", id, model.SchedulePending).
		Updates(map[string]any{
			"status":      status,
			"last_error":  errMsg,
			"executed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("schedule %d is not pending", id)
	}
	return nil
}

func (s *gormStore) PutPushSubscription(ctx context.Context, sub model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "device_id"}),
	}).Create(&sub).Error
}

func (s *gormStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	res := s.db.WithContext(ctx).Delete(&model.PushSubscription{}, "endpoint = ?", endpoint)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *gormStore) ListPushSubscriptions(ctx context.Context, deviceID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	q := s.db.WithContext(ctx)
	if deviceID != "" {
		q = q.Where("device_id = ? OR device_id = ''", strings.ToUpper(deviceID))
	}
	if err := q.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
