package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medication-reminder-backend/config"
	"medication-reminder-backend/internal/agenda"
	"medication-reminder-backend/internal/apperr"
	"medication-reminder-backend/internal/intake"
	"medication-reminder-backend/internal/jobqueue"
	"medication-reminder-backend/internal/model"
	"medication-reminder-backend/internal/recurrence"
	"medication-reminder-backend/internal/reminder"
	"medication-reminder-backend/internal/store"
	"medication-reminder-backend/internal/sweep"
	"medication-reminder-backend/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var at0855 = time.Date(2024, 3, 4, 8, 55, 0, 0, time.UTC)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type harness struct {
	t      *testing.T
	db     *gorm.DB
	store  store.Store
	clk    fakeClock
	router *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gormDB := testutil.NewDB(t)
	st := store.NewGormStore(gormDB)
	clk := clockwork.NewFakeClockAt(at0855)
	cfg := config.Default()
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	log := zap.NewNop()

	notifications := jobqueue.New(gormDB, reminder.NotificationQueue, cfg.Queues.Notification, cfg.Queues, clk, log)
	missed := jobqueue.New(gormDB, reminder.MissedCheckQueue, cfg.Queues.MissedCheck, cfg.Queues, clk, log)

	mat := reminder.NewMaterializer(clk, time.UTC)
	sched := reminder.NewScheduler(st, notifications, clk, time.UTC, log)
	h := NewHandler(Deps{
		Store:    st,
		Recorder: intake.NewRecorder(st, missed, clk, time.UTC, cfg.Scheduler.LateThreshold, log),
		Agenda:   agenda.NewService(st, clk, time.UTC, log),
		Coord:    sweep.NewCoordinator(st, mat, sched, 2, time.Minute, log),
		WebPush:  &webpush.Options{VAPIDPublicKey: "public-key"},
		Log:      log,
	})

	return &harness{
		t:      t,
		db:     gormDB,
		store:  st,
		clk:    clk,
		router: NewRouter(h, cfg.Server),
	}
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestRunScheduleAndTake(t *testing.T) {
	h := newHarness(t)
	testutil.CreateMedication(t, h.db, "user-1", "Aspirin", recurrence.Daily(), at0855, "09:00", "21:00")

	w := h.do(http.MethodPost, "/api/users/user-1/run", "")
	require.Equal(t, http.StatusOK, w.Code)
	run := decode[sweep.UserResult](t, w)
	assert.Equal(t, 2, run.Created)
	assert.Equal(t, 2, run.Queued)

	w = h.do(http.MethodGet, "/api/users/user-1/schedule/today", "")
	require.Equal(t, http.StatusOK, w.Code)
	day := decode[agenda.Day](t, w)
	require.Len(t, day.Entries, 2)
	assert.Equal(t, 2, day.RemainingCount)
	doseID := day.Entries[0].DoseID
	require.NotEmpty(t, doseID)

	h.clk.Advance(3 * time.Minute)
	w = h.do(http.MethodPost, "/api/doses/"+doseID+"/taken", "")
	require.Equal(t, http.StatusOK, w.Code)
	dose := decode[doseResponse](t, w)
	assert.Equal(t, model.DoseConfirmed, dose.Status)
	assert.Equal(t, "2024-03-04", dose.ScheduledDate)
	assert.NotNil(t, dose.TakenAt)

	w = h.do(http.MethodGet, "/api/users/user-1/schedule?date=2024-03-04", "")
	require.Equal(t, http.StatusOK, w.Code)
	day = decode[agenda.Day](t, w)
	assert.Equal(t, 1, day.RemainingCount)

	t.Run("skip the evening dose", func(t *testing.T) {
		w := h.do(http.MethodPost, "/api/doses/"+day.Entries[1].DoseID+"/skip", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, model.DoseSkipped, decode[doseResponse](t, w).Status)
	})
}

func TestDoseErrors(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/doses/nope/taken", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"dose nope not found"}`, w.Body.String())

	med := testutil.CreateMedication(t, h.db, "user-1", "Aspirin", recurrence.Daily(), at0855, "08:00")
	alerted := at0855
	slotID := med.Slots[0].ID
	dose := &model.Dose{
		MedicationID:  med.ID,
		UserID:        med.UserID,
		SlotID:        &slotID,
		Slot:          model.SlotMorning,
		ScheduledDate: recurrence.DateOf(at0855, time.UTC),
		ScheduledTime: "08:00",
		Status:        model.DoseMissed,
		MissedAlertAt: &alerted,
	}
	require.NoError(t, h.db.Create(dose).Error)

	w = h.do(http.MethodPost, "/api/doses/"+dose.ID+"/taken", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodGet, "/api/users/user-1/schedule?date=03/04/2024", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsCachedUntilIntake(t *testing.T) {
	h := newHarness(t)
	testutil.CreateMedication(t, h.db, "user-1", "Aspirin", recurrence.Daily(), at0855, "09:00")
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/users/user-1/run", "").Code)

	w := h.do(http.MethodGet, "/api/users/user-1/stats?period=daily", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[agenda.Stats](t, w)
	assert.Equal(t, 1, stats.Current.Pending)
	assert.Equal(t, 0, stats.Current.Adherence)

	w = h.do(http.MethodGet, "/api/users/user-1/stats?period=daily", "")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	var dose model.Dose
	require.NoError(t, h.db.First(&dose).Error)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/doses/"+dose.ID+"/taken", "").Code)

	w = h.do(http.MethodGet, "/api/users/user-1/stats?period=daily", "")
	assert.Empty(t, w.Header().Get("X-Cache"))
	stats = decode[agenda.Stats](t, w)
	assert.Equal(t, 1, stats.Current.Taken)
	assert.Equal(t, 100, stats.Current.Adherence)

	w = h.do(http.MethodGet, "/api/users/user-1/stats?period=yearly", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettings(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/api/users/user-1/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"push_enabled":true}`, w.Body.String())

	w = h.do(http.MethodPut, "/api/users/user-1/settings", `{"alert_email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPut, "/api/users/user-1/settings", `{"alert_email":"carer@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"push_enabled":true,"alert_email":"carer@example.com"}`, w.Body.String())

	w = h.do(http.MethodPut, "/api/users/user-1/settings", `{"push_enabled":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"push_enabled":false,"alert_email":"carer@example.com"}`, w.Body.String())
}

func TestGetVAPIDPublicKey(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/api/vapid_public_key", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"public-key"}`, w.Body.String())

	r := gin.New()
	r.GET("/key", NewHandler(Deps{}).GetVAPIDPublicKey)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/key", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		err      error
		expected int
	}{
		{apperr.NotFound("op", "dose"), http.StatusNotFound},
		{apperr.InvalidInput("op", "bad"), http.StatusBadRequest},
		{apperr.New(apperr.KindConflict, "op", errors.New("x")), http.StatusConflict},
		{apperr.Transient("op", errors.New("x")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, statusFor(tc.err), tc.err.Error())
	}
}
