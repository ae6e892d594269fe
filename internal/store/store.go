package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medication-reminder-backend/internal/model"
)

// ErrNotFound is returned when a dose or medication does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for all database operations.
type Store interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	ListActiveMedications(ctx context.Context, userID string) ([]model.Medication, error)
	CreateDoseIfAbsent(ctx context.Context, dose *model.Dose) (bool, error)
	GetDose(ctx context.Context, id string) (*model.Dose, error)
	MarkMissedIfPending(ctx context.Context, id string, alertClaimedAt *time.Time) (bool, error)
	RecordIntake(ctx context.Context, id string, status model.DoseStatus, takenAt *time.Time) (bool, error)
	ListDoses(ctx context.Context, userID string, from, to time.Time) ([]model.Dose, error)
	GetSettings(ctx context.Context, userID string) (*model.UserSettings, error)
	SaveSettings(ctx context.Context, settings *model.UserSettings) error
	ListSubscriptions(ctx context.Context, userID string) ([]model.PushSubscription, error)
	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// ListUserIDs returns every user that owns at least one active medication.
func (s *gormStore) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&model.Medication{}).
		Distinct("user_id").
		Where("is_active = ?", true).
		Order("user_id").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return ids, nil
}

// ListActiveMedications loads a user's active medications with only their active slots.
func (s *gormStore) ListActiveMedications(ctx context.Context, userID string) ([]model.Medication, error) {
	var meds []model.Medication
	if err := s.db.WithContext(ctx).
		Preload("Slots", func(tx *gorm.DB) *gorm.DB {
			return tx.Where("is_active = ?", true).Order("created_at, id")
		}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at, id").
		Find(&meds).Error; err != nil {
		return nil, fmt.Errorf("failed to list medications for user %s: %w", userID, err)
	}
	return meds, nil
}

// CreateDoseIfAbsent inserts dose unless one already exists for its
// (medication, slot, date). The existence check and insert share a
// transaction and the unique index catches concurrent inserts. When a row
// already exists, dose is overwritten with it and false is returned.
func (s *gormStore) CreateDoseIfAbsent(ctx context.Context, dose *model.Dose) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findDose(tx, dose)
		if err != nil {
			return err
		}
		if existing != nil {
			*dose = *existing
			return nil
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(dose)
		if res.Error != nil {
			return fmt.Errorf("failed to create dose for medication %s: %w", dose.MedicationID, res.Error)
		}
		if res.RowsAffected == 1 {
			created = true
			return nil
		}

		// Lost an insert race; hand back the winner's row.
		existing, err = findDose(tx, dose)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("dose for medication %s vanished after conflicting insert", dose.MedicationID)
		}
		*dose = *existing
		return nil
	})
	return created, err
}

func findDose(tx *gorm.DB, dose *model.Dose) (*model.Dose, error) {
	q := tx.Where("medication_id = ? AND scheduled_date = ?", dose.MedicationID, dose.ScheduledDate)
	if dose.SlotID == nil {
		q = q.Where("slot_id IS NULL")
	} else {
		q = q.Where("slot_id = ?", *dose.SlotID)
	}

	var existing model.Dose
	err := q.Limit(1).Find(&existing).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up dose for medication %s: %w", dose.MedicationID, err)
	}
	if existing.ID == "" {
		return nil, nil
	}
	return &existing, nil
}

// GetDose loads a dose together with its medication.
func (s *gormStore) GetDose(ctx context.Context, id string) (*model.Dose, error) {
	var dose model.Dose
	err := s.db.WithContext(ctx).Preload("Medication").First(&dose, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dose %s: %w", id, err)
	}
	return &dose, nil
}

// MarkMissedIfPending moves a dose from PENDING to MISSED with a single
// conditional update. A non-nil alertClaimedAt records that the caller is
// about to send the missed-dose alert. It returns false when the dose was no
// longer pending.
func (s *gormStore) MarkMissedIfPending(ctx context.Context, id string, alertClaimedAt *time.Time) (bool, error) {
	updates := map[string]any{"status": model.DoseMissed}
	if alertClaimedAt != nil {
		updates["missed_alert_at"] = *alertClaimedAt
	}

	res := s.db.WithContext(ctx).
		Model(&model.Dose{}).
		Where("id = ? AND status = ?", id, model.DosePending).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark dose %s missed: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RecordIntake writes a user-reported outcome. Doses whose missed alert has
// already fired are left untouched and false is returned.
func (s *gormStore) RecordIntake(ctx context.Context, id string, status model.DoseStatus, takenAt *time.Time) (bool, error) {
	updates := map[string]any{"status": status, "taken_at": takenAt}

	res := s.db.WithContext(ctx).
		Model(&model.Dose{}).
		Where("id = ? AND NOT (status = ? AND missed_alert_at IS NOT NULL)", id, model.DoseMissed).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record intake for dose %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListDoses returns a user's doses scheduled in [from, to).
func (s *gormStore) ListDoses(ctx context.Context, userID string, from, to time.Time) ([]model.Dose, error) {
	var doses []model.Dose
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND scheduled_date >= ? AND scheduled_date < ?", userID, from, to).
		Order("scheduled_date, scheduled_time").
		Find(&doses).Error; err != nil {
		return nil, fmt.Errorf("failed to list doses for user %s: %w", userID, err)
	}
	return doses, nil
}

// GetSettings returns the user's settings, or the defaults (push on, no
// e-mail) when none were saved.
func (s *gormStore) GetSettings(ctx context.Context, userID string) (*model.UserSettings, error) {
	var settings model.UserSettings
	err := s.db.WithContext(ctx).First(&settings, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.UserSettings{UserID: userID, PushEnabled: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for user %s: %w", userID, err)
	}
	return &settings, nil
}

func (s *gormStore) SaveSettings(ctx context.Context, settings *model.UserSettings) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"push_enabled", "alert_email", "updated_at"}),
	}).Create(settings).Error; err != nil {
		return fmt.Errorf("failed to save settings for user %s: %w", settings.UserID, err)
	}
	return nil
}

func (s *gormStore) ListSubscriptions(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for user %s: %w", userID, err)
	}
	return subs, nil
}

// SaveSubscription creates or re-keys a push subscription by endpoint.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", endpoint, err)
	}
	return nil
}
