package recurrence

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustInterval(t *testing.T, n int, unit Unit) Rule {
	t.Helper()
	r, err := Interval(n, unit)
	require.NoError(t, err)
	return r
}

func TestIsDueOn_Daily(t *testing.T) {
	created := time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC)

	assert.False(t, IsDueOn(Daily(), created, date(2024, 1, 9), time.UTC), "never due before creation")
	for d := 10; d <= 31; d++ {
		assert.True(t, IsDueOn(Daily(), created, date(2024, 1, d), time.UTC), "day %d", d)
	}
}

func TestIsDueOn_IntervalDays(t *testing.T) {
	rule := mustInterval(t, 3, UnitDays)
	created := date(2024, 1, 1)

	testCases := []struct {
		target time.Time
		due    bool
	}{
		{date(2024, 1, 1), true},
		{date(2024, 1, 2), false},
		{date(2024, 1, 3), false},
		{date(2024, 1, 4), true},
		{date(2024, 1, 7), true},
		{date(2023, 12, 29), false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.due, IsDueOn(rule, created, tc.target, time.UTC), tc.target.Format("2006-01-02"))
	}
}

func TestIsDueOn_IntervalWeeks(t *testing.T) {
	rule := mustInterval(t, 2, UnitWeeks)
	created := date(2024, 1, 1) // Monday

	testCases := []struct {
		name   string
		target time.Time
		due    bool
	}{
		{"creation day", date(2024, 1, 1), true},
		{"next monday", date(2024, 1, 8), false},
		{"two weeks later", date(2024, 1, 15), true},
		{"tuesday of a due week", date(2024, 1, 16), false},
		{"four weeks later", date(2024, 1, 29), true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.due, IsDueOn(rule, created, tc.target, time.UTC))
		})
	}
}

func TestIsDueOn_IntervalMonths(t *testing.T) {
	rule := mustInterval(t, 1, UnitMonths)

	t.Run("same day of month", func(t *testing.T) {
		created := date(2024, 1, 15)
		assert.True(t, IsDueOn(rule, created, date(2024, 2, 15), time.UTC))
		assert.False(t, IsDueOn(rule, created, date(2024, 2, 14), time.UTC))
	})

	t.Run("every two months", func(t *testing.T) {
		every2 := mustInterval(t, 2, UnitMonths)
		created := date(2024, 11, 5)
		assert.False(t, IsDueOn(every2, created, date(2024, 12, 5), time.UTC))
		assert.True(t, IsDueOn(every2, created, date(2025, 1, 5), time.UTC))
	})

	t.Run("short months clamp to last day", func(t *testing.T) {
		created := date(2024, 1, 31)
		assert.True(t, IsDueOn(rule, created, date(2024, 2, 29), time.UTC))
		assert.False(t, IsDueOn(rule, created, date(2024, 2, 28), time.UTC))
		assert.True(t, IsDueOn(rule, created, date(2024, 4, 30), time.UTC))
		assert.True(t, IsDueOn(rule, created, date(2024, 5, 31), time.UTC))
		assert.False(t, IsDueOn(rule, created, date(2024, 5, 30), time.UTC))
	})
}

func TestIsDueOn_SpecificDays(t *testing.T) {
	rule, err := SpecificDays("MON", "wednesday")
	require.NoError(t, err)
	created := date(2024, 1, 3)

	assert.True(t, IsDueOn(rule, created, date(2024, 1, 3), time.UTC))  // Wed
	assert.False(t, IsDueOn(rule, created, date(2024, 1, 4), time.UTC)) // Thu
	assert.True(t, IsDueOn(rule, created, date(2024, 1, 8), time.UTC))  // Mon
	assert.False(t, IsDueOn(rule, created, date(2024, 1, 1), time.UTC), "Monday before creation")

	empty, err := SpecificDays()
	require.NoError(t, err)
	for d := 3; d < 10; d++ {
		assert.False(t, IsDueOn(empty, created, date(2024, 1, d), time.UTC))
	}
}

func TestIsDueOn_ReferenceZone(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	// 2024-01-01 20:00 UTC is already 2024-01-02 in Jakarta.
	created := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	rule := mustInterval(t, 2, UnitDays)

	assert.True(t, IsDueOn(rule, created, time.Date(2024, 1, 4, 1, 0, 0, 0, jakarta), jakarta))
	assert.False(t, IsDueOn(rule, created, time.Date(2024, 1, 3, 1, 0, 0, 0, jakarta), jakarta))
}

func TestIsDueOn_WestOfUTC(t *testing.T) {
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2024-01-02 03:00 UTC is still 2024-01-01 in New York.
	created := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	rule := mustInterval(t, 2, UnitDays)

	assert.True(t, IsDueOn(rule, created, date(2024, 1, 1), newYork))
	assert.False(t, IsDueOn(rule, created, date(2024, 1, 2), newYork))
	assert.True(t, IsDueOn(rule, created, date(2024, 1, 3), newYork))
	assert.Equal(t, date(2024, 1, 1), DateOf(created, newYork))
}

func TestIsDueToday(t *testing.T) {
	clk := clockwork.NewFakeClockAt(time.Date(2024, 1, 4, 8, 0, 0, 0, time.UTC))
	rule := mustInterval(t, 3, UnitDays)

	assert.True(t, IsDueToday(rule, date(2024, 1, 1), clk, time.UTC))
	clk.Advance(24 * time.Hour)
	assert.False(t, IsDueToday(rule, date(2024, 1, 1), clk, time.UTC))
}

func TestRuleValidate(t *testing.T) {
	_, err := Interval(0, UnitDays)
	assert.Error(t, err)
	_, err = Interval(2, Unit("YEARS"))
	assert.Error(t, err)
	_, err = SpecificDays("MON", "Funday")
	assert.Error(t, err)

	r := Rule{Kind: KindInterval, Every: 0, Unit: UnitDays}
	assert.False(t, IsDueOn(r, date(2024, 1, 1), date(2024, 1, 1), time.UTC), "invalid interval is never due")
}

func TestParseClockTime(t *testing.T) {
	testCases := []struct {
		in        string
		expected  ClockTime
		expectErr bool
	}{
		{in: "09:00", expected: ClockTime{9, 0}},
		{in: "21:45", expected: ClockTime{21, 45}},
		{in: "08:00 AM", expected: ClockTime{8, 0}},
		{in: "08:30 pm", expected: ClockTime{20, 30}},
		{in: "12:00 PM", expected: ClockTime{12, 0}},
		{in: "12:15 AM", expected: ClockTime{0, 15}},
		{in: "24:00", expectErr: true},
		{in: "13:00 PM", expectErr: true},
		{in: "9", expectErr: true},
		{in: "09:61", expectErr: true},
		{in: "", expectErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseClockTime(tc.in)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestClockTimeOn(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	ct := ClockTime{Hour: 9, Minute: 0}
	at := ct.On(date(2024, 3, 5), jakarta)
	assert.Equal(t, time.Date(2024, 3, 5, 2, 0, 0, 0, time.UTC), at.UTC())
	assert.Equal(t, "09:00", ct.String())

	t.Run("date read back in a local zone", func(t *testing.T) {
		newYork, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)
		local := date(2024, 3, 4).In(newYork)
		require.Equal(t, 3, local.Day())

		assert.Equal(t, time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), ct.On(local, time.UTC))
	})
}
