package agenda

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"medication-reminder-backend/internal/apperr"
	"medication-reminder-backend/internal/model"
)

// Period selects the window statistics are computed over.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ParsePeriod accepts the period names case-insensitively; empty means daily.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodDaily, nil
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return p, nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// days is the window length. Windows end with today, inclusive.
func (p Period) days() int {
	switch p {
	case PeriodWeekly:
		return 7
	case PeriodMonthly:
		return 30
	}
	return 1
}

// Counts tallies doses by status within one window.
type Counts struct {
	Total     int `json:"total"`
	Taken     int `json:"taken"`
	Confirmed int `json:"confirmed"`
	Late      int `json:"late"`
	Skipped   int `json:"skipped"`
	Missed    int `json:"missed"`
	Pending   int `json:"pending"`
	Adherence int `json:"adherence"`
}

// Stats compares the current window with the one before it.
type Stats struct {
	Period          Period `json:"period"`
	From            string `json:"from"`
	To              string `json:"to"`
	Current         Counts `json:"current"`
	Previous        Counts `json:"previous"`
	AdherenceChange int    `json:"adherence_change"`
}

// Adherence is taken / (total - pending - skipped) as a rounded percentage.
// Skipped doses are intentional and pending ones are undecided, so neither
// counts against the user.
func Adherence(c Counts) int {
	relevant := c.Total - c.Pending - c.Skipped
	if relevant <= 0 {
		return 0
	}
	return int(math.Round(float64(c.Taken) * 100 / float64(relevant)))
}

func tally(doses []model.Dose) Counts {
	var c Counts
	for _, d := range doses {
		c.Total++
		switch d.Status {
		case model.DoseConfirmed:
			c.Confirmed++
		case model.DoseLate:
			c.Late++
		case model.DoseSkipped:
			c.Skipped++
		case model.DoseMissed:
			c.Missed++
		case model.DosePending:
			c.Pending++
		}
	}
	c.Taken = c.Confirmed + c.Late
	c.Adherence = Adherence(c)
	return c
}

// Stats computes intake statistics for the window ending today and the
// window of equal length right before it.
func (s *Service) Stats(ctx context.Context, userID string, period Period) (*Stats, error) {
	const op = "agenda.Stats"

	if strings.TrimSpace(userID) == "" {
		return nil, apperr.InvalidInput(op, "user id is required")
	}
	period, err := ParsePeriod(string(period))
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, op, err)
	}

	n := period.days()
	end := s.mat.Today().AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -n)
	prevStart := start.AddDate(0, 0, -n)

	doses, err := s.store.ListDoses(ctx, userID, prevStart, end)
	if err != nil {
		return nil, apperr.Transient(op, err)
	}

	var prev, cur []model.Dose
	for _, d := range doses {
		if d.ScheduledDate.Before(start) {
			prev = append(prev, d)
		} else {
			cur = append(cur, d)
		}
	}

	stats := &Stats{
		Period:   period,
		From:     start.Format(DateLayout),
		To:       end.AddDate(0, 0, -1).Format(DateLayout),
		Current:  tally(cur),
		Previous: tally(prev),
	}
	stats.AdherenceChange = stats.Current.Adherence - stats.Previous.Adherence
	return stats, nil
}

// ParseDate reads a calendar date in DateLayout.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
