// Package recurrence decides which calendar dates a medication is due on.
//
// Everything here is pure: no I/O and no reads of the wall clock. Calendar
// dates are represented as time.Time values at UTC midnight (see DateOf), the
// same form in which dose dates are persisted.
package recurrence

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects which variant of Rule is in effect.
type Kind string

const (
	KindDaily        Kind = "DAILY"
	KindInterval     Kind = "INTERVAL"
	KindSpecificDays Kind = "SPECIFIC_DAYS"
)

// Unit is the step of an interval rule.
type Unit string

const (
	UnitDays   Unit = "DAYS"
	UnitWeeks  Unit = "WEEKS"
	UnitMonths Unit = "MONTHS"
)

// Rule is a tagged variant: Every/Unit apply to KindInterval, Days to
// KindSpecificDays. An empty Days set is valid and never due.
type Rule struct {
	Kind  Kind
	Every int
	Unit  Unit
	Days  []time.Weekday
}

// Daily is due on every date from creation onwards.
func Daily() Rule {
	return Rule{Kind: KindDaily}
}

// Interval is due every n units counted from the creation date.
func Interval(n int, unit Unit) (Rule, error) {
	r := Rule{Kind: KindInterval, Every: n, Unit: unit}
	return r, r.Validate()
}

// SpecificDays is due on the named weekdays. Names are case-insensitive and
// may be abbreviated ("MON") or full ("monday").
func SpecificDays(names ...string) (Rule, error) {
	days := make([]time.Weekday, 0, len(names))
	seen := make(map[time.Weekday]bool, len(names))
	for _, name := range names {
		wd, err := ParseWeekday(name)
		if err != nil {
			return Rule{}, err
		}
		if !seen[wd] {
			seen[wd] = true
			days = append(days, wd)
		}
	}
	return Rule{Kind: KindSpecificDays, Days: days}, nil
}

// Validate checks the variant's invariants.
func (r Rule) Validate() error {
	switch r.Kind {
	case KindDaily, KindSpecificDays:
		return nil
	case KindInterval:
		if r.Every < 1 {
			return fmt.Errorf("interval value must be >= 1, got %d", r.Every)
		}
		switch r.Unit {
		case UnitDays, UnitWeeks, UnitMonths:
			return nil
		}
		return fmt.Errorf("unknown interval unit %q", r.Unit)
	}
	return fmt.Errorf("unknown frequency type %q", r.Kind)
}

func (r Rule) String() string {
	switch r.Kind {
	case KindInterval:
		return fmt.Sprintf("every %d %s", r.Every, strings.ToLower(string(r.Unit)))
	case KindSpecificDays:
		names := make([]string, len(r.Days))
		for i, d := range r.Days {
			names[i] = weekdayNames[d]
		}
		return "on " + strings.Join(names, ",")
	}
	return "daily"
}

var weekdayNames = [...]string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}

// ParseWeekday accepts "MON", "Mon", "monday" and similar spellings.
func ParseWeekday(name string) (time.Weekday, error) {
	s := strings.ToUpper(strings.TrimSpace(name))
	if len(s) >= 3 {
		for i, abbr := range weekdayNames {
			if strings.HasPrefix(s, abbr) {
				full := strings.ToUpper(time.Weekday(i).String())
				if s == abbr || s == full {
					return time.Weekday(i), nil
				}
			}
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

// WeekdayName returns the three-letter upper-case name stored for a weekday.
func WeekdayName(d time.Weekday) string {
	return weekdayNames[d]
}
