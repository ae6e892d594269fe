package reminder

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"medication-reminder-backend/internal/apperr"
	"medication-reminder-backend/internal/model"
	"medication-reminder-backend/internal/recurrence"
	"medication-reminder-backend/internal/store"
)

// Scheduler enqueues the notification job of a pending dose.
type Scheduler struct {
	store store.Store
	queue Queue
	clk   clockwork.Clock
	loc   *time.Location
	log   *zap.Logger
}

func NewScheduler(st store.Store, queue Queue, clk clockwork.Clock, loc *time.Location, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{store: st, queue: queue, clk: clk, loc: loc, log: log}
}

// Delay is the time left until the dose's clock time.
func (s *Scheduler) Delay(dose *model.Dose) (time.Duration, error) {
	ct, err := recurrence.ParseClockTime(dose.ScheduledTime)
	if err != nil {
		return 0, err
	}
	return ct.On(dose.ScheduledDate, s.loc).Sub(s.clk.Now()), nil
}

// Schedule enqueues reminder-{doseId} to fire at the dose's clock time. It
// returns false when the time has already passed, in which case the dose is
// flipped to MISSED, or when the reminder was already enqueued. A queue
// failure leaves the dose in place and is returned as a transient error.
func (s *Scheduler) Schedule(ctx context.Context, dose *model.Dose, med *model.Medication) (bool, error) {
	const op = "reminder.Schedule"

	delay, err := s.Delay(dose)
	if err != nil {
		return false, apperr.New(apperr.KindInvalidInput, op, err)
	}
	log := s.log.With(zap.String("dose_id", dose.ID), zap.String("medication_id", med.ID))

	if delay <= 0 {
		flipped, err := s.store.MarkMissedIfPending(ctx, dose.ID, nil)
		if err != nil {
			log.Error("failed to mark passed dose missed", zap.Error(err))
			return false, apperr.Transient(op, err)
		}
		if flipped {
			dose.Status = model.DoseMissed
		}
		log.Info("dose time already passed, not scheduling", zap.Bool("marked_missed", flipped))
		return false, nil
	}

	enqueued, err := s.queue.Enqueue(ctx, ReminderKey(dose.ID), ReminderPayload{
		DoseID:         dose.ID,
		UserID:         dose.UserID,
		MedicationID:   dose.MedicationID,
		MedicationName: med.Name,
		Slot:           dose.Slot,
		ScheduledTime:  dose.ScheduledTime,
	}, delay)
	if err != nil {
		log.Error("failed to enqueue reminder", zap.Error(err))
		return false, apperr.Transient(op, err)
	}
	if !enqueued {
		log.Debug("reminder already scheduled")
		return false, nil
	}

	log.Info("reminder scheduled", zap.Duration("delay", delay))
	return true, nil
}
