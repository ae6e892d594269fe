package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medication-reminder-backend/config"
	"medication-reminder-backend/internal/apperr"
	"medication-reminder-backend/internal/jobqueue"
	"medication-reminder-backend/internal/model"
	"medication-reminder-backend/internal/recurrence"
	"medication-reminder-backend/internal/reminder"
	"medication-reminder-backend/internal/store"
	"medication-reminder-backend/internal/testutil"
)

var nine = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type brokenQueue struct{}

func (brokenQueue) Enqueue(ctx context.Context, key string, payload any, delay time.Duration) (bool, error) {
	return false, errors.New("down")
}

func (brokenQueue) Cancel(ctx context.Context, key string) (bool, error) {
	return false, errors.New("down")
}

func setup(t *testing.T) (store.Store, *jobqueue.Queue, *model.Dose, time.Time) {
	t.Helper()
	return setupOn(t, testutil.NewDB(t))
}

func setupOn(t *testing.T, gormDB *gorm.DB) (store.Store, *jobqueue.Queue, *model.Dose, time.Time) {
	t.Helper()
	st := store.NewGormStore(gormDB)
	cfg := config.Default()
	q := jobqueue.New(gormDB, reminder.MissedCheckQueue, cfg.Queues.MissedCheck, cfg.Queues, clockwork.NewFakeClockAt(nine), zap.NewNop())

	med := testutil.CreateMedication(t, gormDB, "user-1", "Aspirin", recurrence.Daily(), nine.Add(-time.Hour), "09:00")
	slotID := med.Slots[0].ID
	dose := &model.Dose{
		MedicationID:  med.ID,
		UserID:        med.UserID,
		SlotID:        &slotID,
		Slot:          med.Slots[0].Label,
		ScheduledDate: recurrence.DateOf(nine, time.UTC),
		ScheduledTime: "09:00",
		Status:        model.DosePending,
	}
	_, err := st.CreateDoseIfAbsent(context.Background(), dose)
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), reminder.MissedCheckKey(dose.ID), reminder.MissedCheckPayload{DoseID: dose.ID}, 10*time.Minute)
	require.NoError(t, err)
	return st, q, dose, nine
}

func TestMarkTaken_Lateness(t *testing.T) {
	testCases := []struct {
		name     string
		after    time.Duration
		expected model.DoseStatus
	}{
		{name: "early", after: -20 * time.Minute, expected: model.DoseConfirmed},
		{name: "on time", after: 0, expected: model.DoseConfirmed},
		{name: "exactly at threshold", after: 10 * time.Minute, expected: model.DoseConfirmed},
		{name: "just past threshold", after: 10*time.Minute + time.Second, expected: model.DoseLate},
		{name: "eleven minutes", after: 11 * time.Minute, expected: model.DoseLate},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			st, q, dose, scheduled := setup(t)
			clk := clockwork.NewFakeClockAt(scheduled.Add(tc.after))
			rec := NewRecorder(st, q, clk, time.UTC, 10*time.Minute, zap.NewNop())

			got, err := rec.MarkTaken(context.Background(), dose.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got.Status)
			require.NotNil(t, got.TakenAt)
			assert.True(t, got.TakenAt.Equal(clk.Now()))

			stored, err := st.GetDose(context.Background(), dose.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, stored.Status)

			job, err := q.Get(context.Background(), reminder.MissedCheckKey(dose.ID))
			require.NoError(t, err)
			assert.Equal(t, model.JobCancelled, job.Status, "paired missed check is no longer pending")
		})
	}
}

func TestSkip(t *testing.T) {
	st, q, dose, scheduled := setup(t)
	rec := NewRecorder(st, q, clockwork.NewFakeClockAt(scheduled), time.UTC, 10*time.Minute, zap.NewNop())

	got, err := rec.Skip(context.Background(), dose.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DoseSkipped, got.Status)
	assert.Nil(t, got.TakenAt)

	job, err := q.Get(context.Background(), reminder.MissedCheckKey(dose.ID))
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, job.Status)

	// Re-recording a terminal dose is allowed.
	got, err = rec.MarkTaken(context.Background(), dose.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DoseConfirmed, got.Status)
}

func TestRecorder_Errors(t *testing.T) {
	st, q, dose, scheduled := setup(t)
	clk := clockwork.NewFakeClockAt(scheduled)
	rec := NewRecorder(st, q, clk, time.UTC, 10*time.Minute, zap.NewNop())
	ctx := context.Background()

	_, err := rec.MarkTaken(ctx, "  ")
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = rec.Skip(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	alertAt := clk.Now()
	ok, err := st.MarkMissedIfPending(ctx, dose.ID, &alertAt)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = rec.MarkTaken(ctx, dose.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestRecorder_CancelFailureIsNotFatal(t *testing.T) {
	st, _, dose, scheduled := setup(t)
	rec := NewRecorder(st, brokenQueue{}, clockwork.NewFakeClockAt(scheduled), time.UTC, 10*time.Minute, zap.NewNop())

	got, err := rec.MarkTaken(context.Background(), dose.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DoseConfirmed, got.Status)
}

func TestMarkTaken_HostWestOfUTC(t *testing.T) {
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	st, q, dose, scheduled := setupOn(t, testutil.NewLocalDB(t, newYork))
	ctx := context.Background()

	stored, err := st.GetDose(ctx, dose.ID)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, stored.ScheduledDate.Location())
	assert.True(t, stored.ScheduledDate.Equal(recurrence.DateOf(scheduled, time.UTC)))

	rec := NewRecorder(st, q, clockwork.NewFakeClockAt(scheduled.Add(2*time.Minute)), time.UTC, 10*time.Minute, zap.NewNop())
	got, err := rec.MarkTaken(ctx, dose.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DoseConfirmed, got.Status)
}
