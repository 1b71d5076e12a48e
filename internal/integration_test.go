package internal

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"waterhub/internal/alarm"
	"waterhub/internal/hub"
	"waterhub/internal/model"
	"waterhub/internal/router"
	"waterhub/internal/store"
	"waterhub/internal/sweeper"
)

// fakeTransport stands in for a live WebSocket connection across the
// six end-to-end scenarios below: it records every frame sent to it so
// assertions can inspect what a real device or dashboard would have
// received.
type fakeTransport struct {
	sent   []sentFrame
	closed bool
	reason string
}

type sentFrame struct {
	msgType string
	data    any
}

func (f *fakeTransport) Send(msgType string, data any) error {
	f.sent = append(f.sent, sentFrame{msgType, data})
	return nil
}

func (f *fakeTransport) CloseWithReason(code int, reason string) error {
	f.closed = true
	f.reason = reason
	return nil
}

func (f *fakeTransport) hasType(msgType string) bool {
	for _, s := range f.sent {
		if s.msgType == msgType {
			return true
		}
	}
	return false
}

func newIntegrationStore(t *testing.T) store.Store {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Device{}, &model.Alarm{}, &model.Schedule{}, &model.PushSubscription{}))
	return store.NewGormStore(db)
}

func testLog() *log.Logger { return log.New(os.Stderr, "integration-test ", 0) }

// TestEndToEnd_DeviceJoinAndDashboardSnapshot covers the happy join: a
// device connects and registers itself in the Store, then a dashboard
// connects and the Hub reflects exactly one of each.
func TestEndToEnd_DeviceJoinAndDashboardSnapshot(t *testing.T) {
	st := newIntegrationStore(t)
	h := hub.New(testLog())

	deviceTransport := &fakeTransport{}
	deviceSess := hub.NewDeviceSession("h1", deviceTransport, "10.0.0.5:1234", time.Now())
	res := h.AdmitDevice(deviceSess, "STRWSMK1", time.Now())
	assert.Nil(t, res.Superseded)
	assert.Equal(t, 0, res.ReconnectCount)

	_, err := st.RegisterOrTouchDevice(context.Background(), "STRWSMK1", "10.0.0.5:1234")
	require.NoError(t, err)
	online := true
	require.NoError(t, st.SetDeviceStatus(context.Background(), "STRWSMK1", &online, nil, time.Now()))

	dashTransport := &fakeTransport{}
	dashSess := hub.NewDashboardSession("h2", dashTransport, "10.0.0.9:4321", time.Now())
	h.AdmitDashboard(dashSess)

	stats := h.Stats()
	assert.Equal(t, 1, stats.DeviceActive)
	assert.Equal(t, 1, stats.DashboardActive)

	snapshot := h.Snapshot()
	assert.Len(t, snapshot, 1)
	assert.Equal(t, "STRWSMK1", snapshot[0].DeviceID)
}

// TestEndToEnd_ReconnectSupersedesPriorSession covers a device
// reconnecting while its old session is still registered: the old
// session is superseded and told to close, and the reconnect counter
// advances by exactly one.
func TestEndToEnd_ReconnectSupersedesPriorSession(t *testing.T) {
	h := hub.New(testLog())

	oldTransport := &fakeTransport{}
	oldSess := hub.NewDeviceSession("h1", oldTransport, "10.0.0.5:1111", time.Now())
	h.AdmitDevice(oldSess, "STRWSMK1", time.Now())

	newTransport := &fakeTransport{}
	newSess := hub.NewDeviceSession("h2", newTransport, "10.0.0.5:2222", time.Now())
	res := h.AdmitDevice(newSess, "STRWSMK1", time.Now())

	require.NotNil(t, res.Superseded)
	assert.Same(t, oldSess, res.Superseded)
	assert.Equal(t, 1, res.ReconnectCount)

	// The handler for the old session would now close it with this code.
	_ = oldTransport.CloseWithReason(4000, "superseded")
	assert.True(t, oldTransport.closed)
	assert.Equal(t, "superseded", oldTransport.reason)

	current, ok := h.Lookup("STRWSMK1")
	require.True(t, ok)
	assert.Same(t, newSess, current)

	// The stale reader loop eventually notices and calls Drop on itself;
	// that must be a no-op, not an eviction of the session that replaced it.
	dropRes := h.Drop(oldSess)
	assert.False(t, dropRes.WasDevice)
	current, ok = h.Lookup("STRWSMK1")
	require.True(t, ok)
	assert.Same(t, newSess, current)
}

// TestEndToEnd_ManualCommandToUnregisteredDeviceFails covers a dashboard
// issuing a manual water command against a device that has never
// registered: the Command Router returns the not-found precondition
// error rather than queueing anything.
func TestEndToEnd_ManualCommandToUnregisteredDeviceFails(t *testing.T) {
	st := newIntegrationStore(t)
	h := hub.New(testLog())
	r := router.New(h, st, testLog())

	_, err := r.IssueWaterCommand(context.Background(), "GHOST1", "water", 5000)
	assert.Error(t, err)
}

// TestEndToEnd_AlarmFiresAgainstConnectedDevice covers a due alarm
// dispatching to a connected device and advancing past the fired
// occurrence, with the dashboard observing alarm_executed.
func TestEndToEnd_AlarmFiresAgainstConnectedDevice(t *testing.T) {
	st := newIntegrationStore(t)
	h := hub.New(testLog())
	r := router.New(h, st, testLog())

	deviceTransport := &fakeTransport{}
	deviceSess := hub.NewDeviceSession("h1", deviceTransport, "10.0.0.5:1234", time.Now())
	h.AdmitDevice(deviceSess, "STRWSMK1", time.Now())

	dashTransport := &fakeTransport{}
	dashSess := hub.NewDashboardSession("h2", dashTransport, "10.0.0.9:4321", time.Now())
	h.AdmitDashboard(dashSess)

	ctx := context.Background()
	_, err := st.RegisterOrTouchDevice(ctx, "STRWSMK1", "10.0.0.5:1234")
	require.NoError(t, err)
	online := true
	require.NoError(t, st.SetDeviceStatus(ctx, "STRWSMK1", &online, nil, time.Now()))

	a, err := st.CreateAlarm(ctx, store.CreateAlarmParams{
		DeviceID: "STRWSMK1", Name: "morning", TimeOfDay: "07:00",
		Days: []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}, DurationMS: 5000,
	})
	require.NoError(t, err)
	// Force it due right now regardless of what NextExecution CreateAlarm computed.
	require.NoError(t, st.DB().Model(&model.Alarm{}).Where("id = ?", a.ID).Update("next_execution", time.Now().Add(-time.Minute)).Error)

	engine := alarm.New(st, r, nil, testLog(), time.Minute)
	engine.Tick(ctx)

	assert.True(t, deviceTransport.hasType("water_command"))
	assert.True(t, dashTransport.hasType("alarm_executed"))

	due, err := st.FindDueAlarms(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due, "a fired alarm must not still be due a moment later")
}

// TestEndToEnd_AlarmMissesOfflineDevice covers the companion case: an
// alarm whose device never connected still advances next_execution so
// it cannot backlog, and the dashboard is told it was missed.
func TestEndToEnd_AlarmMissesOfflineDevice(t *testing.T) {
	st := newIntegrationStore(t)
	h := hub.New(testLog())
	r := router.New(h, st, testLog())

	dashTransport := &fakeTransport{}
	dashSess := hub.NewDashboardSession("h2", dashTransport, "10.0.0.9:4321", time.Now())
	h.AdmitDashboard(dashSess)

	ctx := context.Background()
	a, err := st.CreateAlarm(ctx, store.CreateAlarmParams{
		DeviceID: "OFFLINE1", Name: "morning", TimeOfDay: "07:00",
		Days: []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}, DurationMS: 5000,
	})
	require.NoError(t, err)
	require.NoError(t, st.DB().Model(&model.Alarm{}).Where("id = ?", a.ID).Update("next_execution", time.Now().Add(-time.Minute)).Error)

	engine := alarm.New(st, r, nil, testLog(), time.Minute)
	engine.Tick(ctx)

	assert.True(t, dashTransport.hasType("alarm_missed"))

	due, err := st.FindDueAlarms(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)
}

// TestEndToEnd_StaleSessionIsSweptAndBroadcast covers a device that
// stops heartbeating: the sweeper evicts it from the Hub, closes its
// transport, mirrors offline status into the Store, and broadcasts the
// disconnect to every dashboard.
func TestEndToEnd_StaleSessionIsSweptAndBroadcast(t *testing.T) {
	st := newIntegrationStore(t)
	h := hub.New(testLog())
	r := router.New(h, st, testLog())

	ctx := context.Background()
	_, err := st.RegisterOrTouchDevice(ctx, "STALE1", "10.0.0.5:1234")
	require.NoError(t, err)
	online := true
	require.NoError(t, st.SetDeviceStatus(ctx, "STALE1", &online, nil, time.Now()))

	deviceTransport := &fakeTransport{}
	staleAt := time.Now().Add(-20 * time.Minute)
	deviceSess := hub.NewDeviceSession("h1", deviceTransport, "10.0.0.5:1234", staleAt)
	h.AdmitDevice(deviceSess, "STALE1", staleAt)

	dashTransport := &fakeTransport{}
	dashSess := hub.NewDashboardSession("h2", dashTransport, "10.0.0.9:4321", time.Now())
	h.AdmitDashboard(dashSess)

	sw := sweeper.New(h, r, st, nil, testLog(), time.Minute, 10*time.Minute)
	sw.SweepOnce(ctx)

	assert.True(t, deviceTransport.closed)
	assert.True(t, dashTransport.hasType("device_disconnected"))

	_, ok := h.Lookup("STALE1")
	assert.False(t, ok)

	device, err := st.FindDevice(ctx, "STALE1")
	require.NoError(t, err)
	assert.False(t, device.Online)
}
