// Package intake records what the user did with a dose.
package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"medication-reminder-backend/internal/apperr"
	"medication-reminder-backend/internal/model"
	"medication-reminder-backend/internal/recurrence"
	"medication-reminder-backend/internal/reminder"
	"medication-reminder-backend/internal/store"
)

// Recorder applies taken and skipped outcomes to doses.
type Recorder struct {
	store         store.Store
	missed        reminder.Queue
	clk           clockwork.Clock
	loc           *time.Location
	lateThreshold time.Duration
	log           *zap.Logger
}

func NewRecorder(st store.Store, missed reminder.Queue, clk clockwork.Clock, loc *time.Location, lateThreshold time.Duration, log *zap.Logger) *Recorder {
	if loc == nil {
		loc = time.UTC
	}
	return &Recorder{
		store:         st,
		missed:        missed,
		clk:           clk,
		loc:           loc,
		lateThreshold: lateThreshold,
		log:           log,
	}
}

// MarkTaken records the dose as CONFIRMED when taken no later than the
// late threshold after its scheduled time, otherwise LATE.
func (r *Recorder) MarkTaken(ctx context.Context, doseID string) (*model.Dose, error) {
	const op = "intake.MarkTaken"

	dose, err := r.load(ctx, op, doseID)
	if err != nil {
		return nil, err
	}

	ct, err := recurrence.ParseClockTime(dose.ScheduledTime)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, op, err)
	}

	now := r.clk.Now()
	status := model.DoseConfirmed
	if now.Sub(ct.On(dose.ScheduledDate, r.loc)) > r.lateThreshold {
		status = model.DoseLate
	}

	return r.write(ctx, op, dose, status, &now)
}

// Skip records the dose as SKIPPED.
func (r *Recorder) Skip(ctx context.Context, doseID string) (*model.Dose, error) {
	const op = "intake.Skip"

	dose, err := r.load(ctx, op, doseID)
	if err != nil {
		return nil, err
	}
	return r.write(ctx, op, dose, model.DoseSkipped, nil)
}

func (r *Recorder) load(ctx context.Context, op, doseID string) (*model.Dose, error) {
	if strings.TrimSpace(doseID) == "" {
		return nil, apperr.InvalidInput(op, "dose id is required")
	}
	dose, err := r.store.GetDose(ctx, doseID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound(op, "dose "+doseID)
	}
	if err != nil {
		return nil, apperr.Transient(op, err)
	}
	return dose, nil
}

func (r *Recorder) write(ctx context.Context, op string, dose *model.Dose, status model.DoseStatus, takenAt *time.Time) (*model.Dose, error) {
	log := r.log.With(zap.String("dose_id", dose.ID))

	ok, err := r.store.RecordIntake(ctx, dose.ID, status, takenAt)
	if err != nil {
		return nil, apperr.Transient(op, err)
	}
	if !ok {
		log.Info("intake refused, missed alert already sent")
		return nil, apperr.New(apperr.KindConflict, op, errors.New("dose was already reported missed"))
	}

	dose.Status = status
	dose.TakenAt = takenAt
	log.Info("intake recorded", zap.String("status", string(status)))

	if _, err := r.missed.Cancel(ctx, reminder.MissedCheckKey(dose.ID)); err != nil {
		log.Warn("failed to cancel missed check", zap.Error(err))
	}
	return dose, nil
}
