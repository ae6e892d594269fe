package reminder

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"medication-reminder-backend/internal/apperr"
	"medication-reminder-backend/internal/jobqueue"
	"medication-reminder-backend/internal/model"
	"medication-reminder-backend/internal/notification"
	"medication-reminder-backend/internal/store"
)

// Outcome is the result of one missed check.
type Outcome string

const (
	// OutcomeMissed: the dose moved PENDING -> MISSED and the alert was claimed.
	OutcomeMissed Outcome = "missed"
	// OutcomeRaceLost: the dose had already left PENDING.
	OutcomeRaceLost Outcome = "race_lost"
	// OutcomeNotFound: the dose no longer exists.
	OutcomeNotFound Outcome = "not_found"
)

// CheckResult reports what a missed check did and the status it saw.
type CheckResult struct {
	Outcome Outcome
	Status  model.DoseStatus
}

// MissedChecker consumes missed-check jobs.
type MissedChecker struct {
	store    store.Store
	notifier notification.Notifier
	clk      clockwork.Clock
	log      *zap.Logger
}

func NewMissedChecker(st store.Store, notifier notification.Notifier, clk clockwork.Clock, log *zap.Logger) *MissedChecker {
	return &MissedChecker{store: st, notifier: notifier, clk: clk, log: log}
}

// Check marks the dose MISSED if and only if it is still PENDING, and then
// sends the missed alert. The status change and the alert claim are a single
// conditional write, so at most one alert fires per dose and never for a
// dose the user resolved.
func (m *MissedChecker) Check(ctx context.Context, doseID string) (CheckResult, error) {
	const op = "reminder.MissedCheck"
	log := m.log.With(zap.String("dose_id", doseID))

	dose, err := m.store.GetDose(ctx, doseID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("dose not found for missed check")
		return CheckResult{Outcome: OutcomeNotFound}, nil
	}
	if err != nil {
		return CheckResult{}, apperr.Transient(op, err)
	}

	if dose.Status != model.DosePending {
		log.Info("missed check lost race", zap.String("status", string(dose.Status)))
		return CheckResult{Outcome: OutcomeRaceLost, Status: dose.Status}, nil
	}

	now := m.clk.Now()
	flipped, err := m.store.MarkMissedIfPending(ctx, doseID, &now)
	if err != nil {
		return CheckResult{}, apperr.Transient(op, err)
	}
	if !flipped {
		status := model.DoseStatus("")
		if current, err := m.store.GetDose(ctx, doseID); err == nil {
			status = current.Status
		}
		log.Info("missed check lost race", zap.String("status", string(status)))
		return CheckResult{Outcome: OutcomeRaceLost, Status: status}, nil
	}

	log.Info("dose marked missed")

	name := ""
	if dose.Medication != nil {
		name = dose.Medication.Name
	}
	if err := m.notifier.SendMissedAlert(ctx, notification.MissedAlert{
		UserID:         dose.UserID,
		DoseID:         dose.ID,
		MedicationName: name,
		ScheduledTime:  dose.ScheduledTime,
	}); err != nil {
		log.Warn("missed alert failed", zap.Error(err))
	}
	return CheckResult{Outcome: OutcomeMissed, Status: model.DoseMissed}, nil
}

// Handle adapts Check to a queue worker.
func (m *MissedChecker) Handle(ctx context.Context, job *jobqueue.Job) error {
	var p MissedCheckPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	_, err := m.Check(ctx, p.DoseID)
	return err
}
