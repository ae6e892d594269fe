// Package reminder turns due medications into doses and drives each dose
// through its reminder and missed-check jobs.
package reminder

import (
	"context"
	"time"

	"medication-reminder-backend/internal/model"
)

// Queue names for the two delayed-job queues.
const (
	NotificationQueue = "notification"
	MissedCheckQueue  = "missed-check"
)

// Queue is a delayed-job queue with idempotent-by-key enqueue.
type Queue interface {
	Enqueue(ctx context.Context, key string, payload any, delay time.Duration) (bool, error)
	Cancel(ctx context.Context, key string) (bool, error)
}

// ReminderKey is the deterministic notification job key of a dose.
func ReminderKey(doseID string) string {
	return "reminder-" + doseID
}

// MissedCheckKey is the deterministic missed-check job key of a dose.
func MissedCheckKey(doseID string) string {
	return "missed-check-" + doseID
}

// ReminderPayload is carried by notification jobs.
type ReminderPayload struct {
	DoseID         string          `json:"dose_id"`
	UserID         string          `json:"user_id"`
	MedicationID   string          `json:"medication_id"`
	MedicationName string          `json:"medication_name"`
	Slot           model.SlotLabel `json:"slot"`
	ScheduledTime  string          `json:"scheduled_time"`
}

// MissedCheckPayload is carried by missed-check jobs.
type MissedCheckPayload struct {
	DoseID string `json:"dose_id"`
}
