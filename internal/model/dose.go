package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DoseStatus is the state of a dose. Everything except PENDING is terminal.
type DoseStatus string

const (
	DosePending   DoseStatus = "PENDING"
	DoseConfirmed DoseStatus = "CONFIRMED"
	DoseLate      DoseStatus = "LATE"
	DoseSkipped   DoseStatus = "SKIPPED"
	DoseMissed    DoseStatus = "MISSED"
)

// Terminal reports whether no scheduled transition leaves this status.
func (s DoseStatus) Terminal() bool {
	return s != DosePending
}

// Taken reports whether the dose counts as taken for adherence.
func (s DoseStatus) Taken() bool {
	return s == DoseConfirmed || s == DoseLate
}

// Dose is one trackable "take this medication at this slot on this date".
type Dose struct {
	ID            string     `gorm:"primaryKey;size:36"`
	MedicationID  string     `gorm:"size:36;not null;uniqueIndex:idx_dose_med_slot_date,priority:1"`
	UserID        string     `gorm:"size:64;not null;index:idx_dose_user_date,priority:1"`
	SlotID        *string    `gorm:"size:36;uniqueIndex:idx_dose_med_slot_date,priority:2"` // nil for ad-hoc doses
	Slot          SlotLabel  `gorm:"size:16;not null"`
	ScheduledDate time.Time  `gorm:"not null;uniqueIndex:idx_dose_med_slot_date,priority:3;index:idx_dose_user_date,priority:2"` // UTC midnight
	ScheduledTime string     `gorm:"size:16;not null"`
	Status        DoseStatus `gorm:"size:16;not null;index"`
	TakenAt       *time.Time
	MissedAlertAt *time.Time // set once the missed-dose alert has been claimed
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Associations
	Medication *Medication `gorm:"constraint:OnDelete:CASCADE"`
}

func (d *Dose) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return
}

// AfterFind puts ScheduledDate back on UTC midnight. Drivers such as pgx
// return timestamptz values in time.Local.
func (d *Dose) AfterFind(tx *gorm.DB) (err error) {
	d.ScheduledDate = d.ScheduledDate.UTC()
	return
}
