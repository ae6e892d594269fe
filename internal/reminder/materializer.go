package reminder

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"medication-reminder-backend/internal/model"
	"medication-reminder-backend/internal/recurrence"
)

// Materializer builds the doses a medication owes on a date. It does not
// persist or deduplicate them.
type Materializer struct {
	clk clockwork.Clock
	loc *time.Location
}

func NewMaterializer(clk clockwork.Clock, loc *time.Location) *Materializer {
	if loc == nil {
		loc = time.UTC
	}
	return &Materializer{clk: clk, loc: loc}
}

// Today is the current calendar date in the reference zone.
func (m *Materializer) Today() time.Time {
	return recurrence.DateOf(m.clk.Now(), m.loc)
}

// Materialize returns one dose per active slot when med is active and due
// on the calendar date target. Slots whose time has already passed yield
// MISSED doses, the rest PENDING.
func (m *Materializer) Materialize(med *model.Medication, target time.Time) ([]model.Dose, error) {
	if !med.IsActive {
		return nil, nil
	}
	rule, err := med.Rule()
	if err != nil {
		return nil, err
	}

	date := recurrence.CalendarDate(target)
	if !recurrence.IsDueOn(rule, med.CreatedAt, date, m.loc) {
		return nil, nil
	}

	now := m.clk.Now()
	today := m.Today()

	var doses []model.Dose
	for _, slot := range med.Slots {
		if !slot.IsActive {
			continue
		}
		ct, err := recurrence.ParseClockTime(slot.Time)
		if err != nil {
			return nil, fmt.Errorf("slot %s of medication %s: %w", slot.ID, med.ID, err)
		}

		var passed bool
		switch {
		case date.Before(today):
			passed = true
		case date.After(today):
			passed = false
		default:
			passed = !ct.On(date, m.loc).After(now)
		}

		status := model.DosePending
		if passed {
			status = model.DoseMissed
		}

		slotID := slot.ID
		doses = append(doses, model.Dose{
			MedicationID:  med.ID,
			UserID:        med.UserID,
			SlotID:        &slotID,
			Slot:          slot.Label,
			ScheduledDate: date,
			ScheduledTime: slot.Time,
			Status:        status,
		})
	}
	return doses, nil
}
