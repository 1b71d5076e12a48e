package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"waterhub/config"
	"waterhub/internal/hub"
	"waterhub/internal/router"
	"waterhub/internal/store"
)

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	gin.SetMode(gin.TestMode)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)

	logger := log.New(os.Stderr, "api-test ", 0)
	st := store.NewGormStore(gdb)
	h := hub.New(logger)
	rt := router.New(h, st, logger)
	handler := NewHandler(st, h, rt, nil, nil, logger, "test-server")
	return handler, mock
}

func testRouter(h *Handler) *gin.Engine {
	cfg := &config.Config{Server: config.ServerConfig{RateLimitPerSec: 100, CacheTTLSeconds: 1}}
	return NewRouter(cfg, h)
}

func TestHealth_ReportsOKWhenDatabaseIsUp(t *testing.T) {
	h, mock := newTestHandler(t)
	r := testRouter(h)

	mock.ExpectQuery(`SELECT \* FROM "devices"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestIssueWaterCommand_DeviceNotFoundReturns404(t *testing.T) {
	h, mock := newTestHandler(t)
	r := testRouter(h)

	mock.ExpectQuery(`SELECT \* FROM "devices"`).
		WillReturnError(gorm.ErrRecordNotFound)

	req := httptest.NewRequest(http.MethodPost, "/api/devices/GHOST1/water", bytes.NewBufferString(`{"action":"water","duration":5000}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVAPIDPublicKey_UnconfiguredReturns503(t *testing.T) {
	h, _ := newTestHandler(t)
	r := testRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/push/vapid_public_key", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateAlarm_RejectsMissingFields(t *testing.T) {
	h, _ := newTestHandler(t)
	r := testRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/alarms", bytes.NewBufferString(`{"deviceId":"STRWSMK1"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeletePushSubscription_RequiresEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	r := testRouter(h)

	req := httptest.NewRequest(http.MethodDelete, "/api/push/subscriptions", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoot_ReturnsServiceBanner(t *testing.T) {
	h, _ := newTestHandler(t)
	r := testRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "waterhub", body["service"])
}

func TestCreateAlarm_RejectsOutOfRangeDuration(t *testing.T) {
	h, mock := newTestHandler(t)
	r := testRouter(h)

	mock.ExpectQuery(`SELECT \* FROM "devices"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("STRWSMK1"))

	body := `{"deviceId":"STRWSMK1","name":"morning","time":"07:00","days":["mon"],"duration":50}`
	req := httptest.NewRequest(http.MethodPost, "/api/alarms", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAlarm_UnknownDeviceReturns404(t *testing.T) {
	h, mock := newTestHandler(t)
	r := testRouter(h)

	mock.ExpectQuery(`SELECT \* FROM "devices"`).
		WillReturnError(gorm.ErrRecordNotFound)

	body := `{"deviceId":"GHOST1","name":"morning","time":"07:00","days":["mon"],"duration":5000}`
	req := httptest.NewRequest(http.MethodPost, "/api/alarms", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIssueWaterCommand_RejectsUnknownAction(t *testing.T) {
	h, _ := newTestHandler(t)
	r := testRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/devices/STRWSMK1/water", bytes.NewBufferString(`{"action":"start"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
