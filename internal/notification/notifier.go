// Package notification delivers dose reminders and missed-dose alerts over
// web push and, for alerts, e-mail.
package notification

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"medication-reminder-backend/internal/store"
)

// Reminder is a "time to take your medication" notification.
type Reminder struct {
	UserID         string
	DoseID         string
	MedicationName string
	ScheduledTime  string
}

// MissedAlert tells the user a dose was not recorded in time.
type MissedAlert struct {
	UserID         string
	DoseID         string
	MedicationName string
	ScheduledTime  string
}

// Notifier is the push capability used by the reminder workers. Both calls
// report failures, but callers treat them as best effort.
type Notifier interface {
	SendReminder(ctx context.Context, r Reminder) error
	SendMissedAlert(ctx context.Context, a MissedAlert) error
}

// Service routes notifications according to user settings.
type Service struct {
	store store.Store
	push  *WebPush
	email *EmailAlerter
	log   *zap.Logger
}

// NewService wires push and the optional e-mail alerter.
func NewService(st store.Store, push *WebPush, email *EmailAlerter, log *zap.Logger) *Service {
	return &Service{store: st, push: push, email: email, log: log}
}

func (s *Service) SendReminder(ctx context.Context, r Reminder) error {
	settings, err := s.store.GetSettings(ctx, r.UserID)
	if err != nil {
		return err
	}
	if !settings.PushEnabled {
		s.log.Info("push notifications disabled for user", zap.String("user_id", r.UserID))
		return nil
	}

	sent, err := s.push.Deliver(ctx, r.UserID, Message{
		Title: "Time to take your medication",
		Body:  fmt.Sprintf("It's time to take %s (%s)", r.MedicationName, r.ScheduledTime),
		Data: map[string]string{
			"type":   "medication_reminder",
			"doseId": r.DoseID,
			"action": "take_medication",
		},
	})
	if err != nil {
		return err
	}
	s.log.Debug("reminder delivered", zap.String("dose_id", r.DoseID), zap.Int("subscriptions", sent))
	return nil
}

func (s *Service) SendMissedAlert(ctx context.Context, a MissedAlert) error {
	settings, err := s.store.GetSettings(ctx, a.UserID)
	if err != nil {
		return err
	}

	var errs error
	if settings.PushEnabled {
		_, err := s.push.Deliver(ctx, a.UserID, Message{
			Title: "Medication missed",
			Body:  fmt.Sprintf("You missed your %s. Please take it now if possible.", a.MedicationName),
			Data: map[string]string{
				"type":   "missed_medication",
				"doseId": a.DoseID,
			},
		})
		errs = multierr.Append(errs, err)
	}

	if s.email != nil && settings.AlertEmail != "" {
		errs = multierr.Append(errs, s.email.SendMissedAlert(ctx, settings.AlertEmail, a))
	}
	return errs
}
