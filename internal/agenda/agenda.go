// Package agenda answers read-side questions about a user's doses: what is
// due on a day and how well the user kept to it.
package agenda

import (
	"context"
	"sort"
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

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Entry is one slot of one medication on a day. DoseID is empty when no
// dose has been materialized for the slot yet.
type Entry struct {
	DoseID         string           `json:"dose_id,omitempty"`
	MedicationID   string           `json:"medication_id"`
	MedicationName string           `json:"medication_name"`
	Dosage         string           `json:"dosage,omitempty"`
	SlotID         string           `json:"slot_id"`
	Slot           model.SlotLabel  `json:"slot"`
	Time           string           `json:"time"`
	Status         model.DoseStatus `json:"status"`
	TakenAt        *time.Time       `json:"taken_at,omitempty"`
	IsPassed       bool             `json:"is_passed"`

	minutes int
}

// Day is a user's schedule for one calendar date.
type Day struct {
	Date           string  `json:"date"`
	Entries        []Entry `json:"entries"`
	RemainingCount int     `json:"remaining_count"`
}

// Service builds schedules and intake statistics.
type Service struct {
	store store.Store
	mat   *reminder.Materializer
	clk   clockwork.Clock
	loc   *time.Location
	log   *zap.Logger
}

func NewService(st store.Store, clk clockwork.Clock, loc *time.Location, log *zap.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store: st,
		mat:   reminder.NewMaterializer(clk, loc),
		clk:   clk,
		loc:   loc,
		log:   log,
	}
}

// Today is the schedule for the current date in the reference zone.
func (s *Service) Today(ctx context.Context, userID string) (*Day, error) {
	return s.ForDate(ctx, userID, s.mat.Today())
}

// ForDate lists every active slot of every medication due on the calendar
// date, ordered by clock time, merged with the doses already recorded for
// it. Slots without a dose report PENDING until their time passes and
// MISSED after.
func (s *Service) ForDate(ctx context.Context, userID string, date time.Time) (*Day, error) {
	const op = "agenda.ForDate"

	if strings.TrimSpace(userID) == "" {
		return nil, apperr.InvalidInput(op, "user id is required")
	}
	date = recurrence.CalendarDate(date)

	meds, err := s.store.ListActiveMedications(ctx, userID)
	if err != nil {
		return nil, apperr.Transient(op, err)
	}
	doses, err := s.store.ListDoses(ctx, userID, date, date.AddDate(0, 0, 1))
	if err != nil {
		return nil, apperr.Transient(op, err)
	}

	bySlot := make(map[string]*model.Dose, len(doses))
	for i := range doses {
		if doses[i].SlotID != nil {
			bySlot[*doses[i].SlotID] = &doses[i]
		}
	}

	day := &Day{Date: date.Format(DateLayout), Entries: []Entry{}}
	for i := range meds {
		med := &meds[i]
		candidates, err := s.mat.Materialize(med, date)
		if err != nil {
			s.log.Warn("skipping medication with invalid schedule",
				zap.String("medication_id", med.ID), zap.Error(err))
			continue
		}

		for _, c := range candidates {
			ct, err := recurrence.ParseClockTime(c.ScheduledTime)
			if err != nil {
				continue
			}
			entry := Entry{
				MedicationID:   med.ID,
				MedicationName: med.Name,
				Dosage:         med.Dosage,
				SlotID:         *c.SlotID,
				Slot:           c.Slot,
				Time:           c.ScheduledTime,
				Status:         c.Status,
				IsPassed:       c.Status == model.DoseMissed,
				minutes:        ct.Minutes(),
			}
			if dose, ok := bySlot[*c.SlotID]; ok {
				entry.DoseID = dose.ID
				entry.Status = dose.Status
				entry.TakenAt = dose.TakenAt
			}
			if !entry.IsPassed && !resolved(entry.Status) {
				day.RemainingCount++
			}
			day.Entries = append(day.Entries, entry)
		}
	}

	sort.SliceStable(day.Entries, func(i, j int) bool {
		return day.Entries[i].minutes < day.Entries[j].minutes
	})
	return day, nil
}

// resolved reports whether the user already acted on the dose.
func resolved(status model.DoseStatus) bool {
	return status.Taken() || status == model.DoseSkipped
}
