package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"medication-reminder-backend/internal/recurrence"
)

// SlotLabel names a time-of-day position; it only drives UI colouring.
type SlotLabel string

const (
	SlotMorning     SlotLabel = "MORNING"
	SlotNoon        SlotLabel = "NOON"
	SlotAfternoon   SlotLabel = "AFTERNOON"
	SlotNight       SlotLabel = "NIGHT"
	SlotBeforeSleep SlotLabel = "BEFORE_SLEEP"
)

// Medication is owned by a user and created through the CRUD layer.
type Medication struct {
	ID            string          `gorm:"primaryKey;size:36"`
	UserID        string          `gorm:"index;size:64;not null"`
	Name          string          `gorm:"size:256;not null"`
	Dosage        string          `gorm:"size:64"`
	FrequencyType recurrence.Kind `gorm:"size:16;not null"`
	IntervalValue int             `gorm:"not null"`
	IntervalUnit  recurrence.Unit `gorm:"size:8"`
	SelectedDays  datatypes.JSON  // JSON array of weekday names, e.g. ["MON","WED"]
	IsActive      bool            `gorm:"not null"`
	CreatedAt     time.Time       // anchors recurrence math
	UpdatedAt     time.Time

	// Associations
	Slots []IntakeSlot `gorm:"foreignKey:MedicationID;constraint:OnDelete:CASCADE"`
}

func (m *Medication) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return
}

// Rule decodes the stored frequency columns into a recurrence rule.
func (m *Medication) Rule() (recurrence.Rule, error) {
	switch m.FrequencyType {
	case "", recurrence.KindDaily:
		return recurrence.Daily(), nil
	case recurrence.KindInterval:
		return recurrence.Interval(m.IntervalValue, m.IntervalUnit)
	case recurrence.KindSpecificDays:
		var names []string
		if len(m.SelectedDays) > 0 {
			if err := json.Unmarshal(m.SelectedDays, &names); err != nil {
				return recurrence.Rule{}, fmt.Errorf("invalid selected days for medication %s: %w", m.ID, err)
			}
		}
		return recurrence.SpecificDays(names...)
	}
	return recurrence.Rule{}, fmt.Errorf("unknown frequency type %q for medication %s", m.FrequencyType, m.ID)
}

// SetRule stores a recurrence rule into the frequency columns.
func (m *Medication) SetRule(r recurrence.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.FrequencyType = r.Kind
	m.IntervalValue = 1
	m.IntervalUnit = recurrence.UnitDays
	m.SelectedDays = nil
	switch r.Kind {
	case recurrence.KindInterval:
		m.IntervalValue = r.Every
		m.IntervalUnit = r.Unit
	case recurrence.KindSpecificDays:
		names := make([]string, len(r.Days))
		for i, d := range r.Days {
			names[i] = recurrence.WeekdayName(d)
		}
		raw, err := json.Marshal(names)
		if err != nil {
			return err
		}
		m.SelectedDays = datatypes.JSON(raw)
	}
	return nil
}

// IntakeSlot is one clock time on a medication's intake schedule.
type IntakeSlot struct {
	ID           string    `gorm:"primaryKey;size:36"`
	MedicationID string    `gorm:"index;size:36;not null"`
	Time         string    `gorm:"size:16;not null"` // "HH:MM" or "HH:MM AM/PM"
	Label        SlotLabel `gorm:"column:slot;size:16;not null"`
	IsActive     bool      `gorm:"not null"`
	CreatedAt    time.Time
}

func (s *IntakeSlot) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return
}
