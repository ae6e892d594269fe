package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a time of day parsed from "HH:MM" or "HH:MM AM/PM".
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses the slot time strings stored on intake slots.
func ParseClockTime(s string) (ClockTime, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return ClockTime{}, fmt.Errorf("invalid clock time %q", s)
	}

	hm := strings.SplitN(fields[0], ":", 2)
	if len(hm) != 2 {
		return ClockTime{}, fmt.Errorf("invalid clock time %q", s)
	}
	hour, err := strconv.Atoi(hm[0])
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(hm[1])
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("minute out of range in %q", s)
	}

	if len(fields) == 2 {
		if hour < 1 || hour > 12 {
			return ClockTime{}, fmt.Errorf("hour out of range in %q", s)
		}
		switch strings.ToUpper(fields[1]) {
		case "AM":
			if hour == 12 {
				hour = 0
			}
		case "PM":
			if hour != 12 {
				hour += 12
			}
		default:
			return ClockTime{}, fmt.Errorf("invalid meridiem in %q", s)
		}
	} else if hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("hour out of range in %q", s)
	}

	return ClockTime{Hour: hour, Minute: minute}, nil
}

// On returns the instant this clock time falls on for the given calendar
// date (a DateOf value) in loc. The date is read in UTC whatever location
// the driver handed it back in.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.UTC().Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// Minutes is the number of minutes after midnight, used for ordering.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}
