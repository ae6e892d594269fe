package recurrence

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const day = 24 * time.Hour

// DateOf returns the calendar date of t as seen in loc, expressed as UTC
// midnight. A nil loc means UTC.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return CalendarDate(t.In(loc))
}

// CalendarDate keeps the year, month and day of t as written in its own
// location and returns them as UTC midnight.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from a to b, both DateOf values.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a) / day)
}

// IsDueOn reports whether the calendar date target is a dose day for a
// medication created at createdAt. The creation instant is reduced to its
// date in loc; target's own year, month and day are used as given. No date
// before creation is ever due.
func IsDueOn(rule Rule, createdAt, target time.Time, loc *time.Location) bool {
	created := DateOf(createdAt, loc)
	date := CalendarDate(target)
	if date.Before(created) {
		return false
	}

	switch rule.Kind {
	case KindDaily:
		return true
	case KindInterval:
		if rule.Every < 1 {
			return false
		}
		return intervalDue(rule, created, date)
	case KindSpecificDays:
		for _, d := range rule.Days {
			if d == date.Weekday() {
				return true
			}
		}
		return false
	}
	return false
}

// IsDueToday is IsDueOn evaluated for the clock's current date.
func IsDueToday(rule Rule, createdAt time.Time, clk clockwork.Clock, loc *time.Location) bool {
	return IsDueOn(rule, createdAt, DateOf(clk.Now(), loc), loc)
}

func intervalDue(rule Rule, created, date time.Time) bool {
	days := DaysBetween(created, date)
	switch rule.Unit {
	case UnitDays:
		return days%rule.Every == 0
	case UnitWeeks:
		// The weekday check keeps floor(days/7) aligned to the creation weekday.
		return (days/7)%rule.Every == 0 && date.Weekday() == created.Weekday()
	case UnitMonths:
		months := (date.Year()*12 + int(date.Month())) - (created.Year()*12 + int(created.Month()))
		return months%rule.Every == 0 && date.Day() == monthlyDay(created.Day(), date)
	}
	return false
}

// monthlyDay clamps the anchor day to the length of date's month, so a
// medication created on the 31st is due on the 30th in April and on the
// 28th or 29th in February.
func monthlyDay(anchor int, date time.Time) int {
	last := time.Date(date.Year(), date.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if anchor > last {
		return last
	}
	return anchor
}
