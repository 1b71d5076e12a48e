package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return gormDB, mock
}

func TestFindDueAlarms_Ordering(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "alarms" WHERE is_active = $1 AND next_execution <= $2 ORDER BY next_execution ASC, id ASC`)).
		WithArgs(true, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "next_execution"}).
			AddRow(2, "DEV1", now.Add(-time.Minute)).
			AddRow(5, "DEV1", now))

	alarms, err := s.FindDueAlarms(context.Background(), now)
	assert.NoError(t, err)
	assert.Len(t, alarms, 2)
	assert.Equal(t, int64(2), alarms[0].ID)
	assert.Equal(t, int64(5), alarms[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAlarmAfterFire_IncrementsExecutionCount(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "alarms" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	firedAt := time.Now()
	err := s.UpdateAlarmAfterFire(context.Background(), 1, &firedAt, firedAt.Add(7*24*time.Hour), true)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSchedule_RejectsTerminalRow(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "schedules" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.MarkSchedule(context.Background(), 99, "executed", "")
	assert.Error(t, err, "marking an already-terminal schedule should fail, not resurrect it")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetDeviceStatus_OnlineIncrementsConnectionCount(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "devices" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	online := true
	err := s.SetDeviceStatus(context.Background(), "dev1", &online, nil, time.Now())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
