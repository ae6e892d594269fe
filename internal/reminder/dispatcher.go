package reminder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"medication-reminder-backend/internal/jobqueue"
	"medication-reminder-backend/internal/notification"
)

// enqueueTimeout bounds the missed-check enqueue, which runs detached from
// the job context.
const enqueueTimeout = 5 * time.Second

// Dispatcher consumes notification jobs.
type Dispatcher struct {
	notifier    notification.Notifier
	missed      Queue
	grace       time.Duration
	pushTimeout time.Duration
	log         *zap.Logger
}

func NewDispatcher(notifier notification.Notifier, missed Queue, grace, pushTimeout time.Duration, log *zap.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, missed: missed, grace: grace, pushTimeout: pushTimeout, log: log}
}

// Dispatch sends the reminder and then schedules the missed check, grace
// after now. The push gets at most pushTimeout and its failures are logged
// only. The enqueue runs outside the job's deadline. A failed enqueue is returned so the queue retries the job, and the retry's enqueue
// is a no-op if the first one actually landed.
func (d *Dispatcher) Dispatch(ctx context.Context, p ReminderPayload) error {
	log := d.log.With(zap.String("dose_id", p.DoseID), zap.String("user_id", p.UserID))

	if err := d.push(ctx, p); err != nil {
		log.Warn("reminder push failed", zap.Error(err))
	}

	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()
	enqueued, err := d.missed.Enqueue(enqueueCtx, MissedCheckKey(p.DoseID), MissedCheckPayload{DoseID: p.DoseID}, d.grace)
	if err != nil {
		return fmt.Errorf("failed to schedule missed check for dose %s: %w", p.DoseID, err)
	}
	log.Info("reminder dispatched", zap.Bool("missed_check_enqueued", enqueued))
	return nil
}

func (d *Dispatcher) push(ctx context.Context, p ReminderPayload) error {
	if d.pushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.pushTimeout)
		defer cancel()
	}
	return d.notifier.SendReminder(ctx, notification.Reminder{
		UserID:         p.UserID,
		DoseID:         p.DoseID,
		MedicationName: p.MedicationName,
		ScheduledTime:  p.ScheduledTime,
	})
}

// Handle adapts Dispatch to a queue worker.
func (d *Dispatcher) Handle(ctx context.Context, job *jobqueue.Job) error {
	var p ReminderPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	return d.Dispatch(ctx, p)
}
