package payroll_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

func TestWorkdaysBetween(t *testing.T) {
	// GIVEN: Calendar months with known weekday layouts
	// WHEN: Counting workdays over the half-open month range
	// THEN: Weekends are excluded and the end bound stays out

	sep := payroll.NewDate(2025, time.September, 1)
	assert.Equal(t, 22, payroll.WorkdaysBetween(sep, sep.AddMonths(1)), "September 2025")

	jan := payroll.NewDate(2025, time.January, 1)
	assert.Equal(t, 23, payroll.WorkdaysBetween(jan, jan.AddMonths(1)), "January 2025")

	feb := payroll.NewDate(2025, time.February, 1)
	assert.Equal(t, 20, payroll.WorkdaysBetween(feb, feb.AddMonths(1)), "February 2025")

	// Empty range.
	assert.Equal(t, 0, payroll.WorkdaysBetween(sep, sep))
}

func TestWorkdaysFrom(t *testing.T) {
	// Sep 17 2025 is a Wednesday: Wed+Thu+Fri out of five calendar days.
	start := payroll.NewDate(2025, time.September, 17)
	assert.Equal(t, 3, payroll.WorkdaysFrom(start, 5))
}

func TestDate_IsWorkday(t *testing.T) {
	assert.True(t, payroll.NewDate(2025, time.September, 15).IsWorkday(), "Monday")
	assert.False(t, payroll.NewDate(2025, time.September, 13).IsWorkday(), "Saturday")
	assert.False(t, payroll.NewDate(2025, time.September, 14).IsWorkday(), "Sunday")
}

func TestParseDate(t *testing.T) {
	d, err := payroll.ParseDate("2025-09-15")
	require.NoError(t, err)
	assert.Equal(t, "2025-09-15", d.String())

	zero, err := payroll.ParseDate("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = payroll.ParseDate("15.09.2025")
	assert.Error(t, err)
}

func TestDate_JSONRoundTrip(t *testing.T) {
	d := payroll.NewDate(2025, time.September, 15)

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2025-09-15"`, string(b))

	var back payroll.Date
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Equal(d))

	var empty payroll.Date
	require.NoError(t, json.Unmarshal([]byte(`""`), &empty))
	assert.True(t, empty.IsZero())
}

func TestPeriod_Bounds(t *testing.T) {
	p := payroll.Period{Year: 2025, Month: time.September}

	assert.Equal(t, "2025-09-01", p.Start().String())
	assert.Equal(t, "2025-10-01", p.NextStart().String())
	assert.Equal(t, "2025-09-30", p.End().String())

	dec := payroll.Period{Year: 2025, Month: time.December}
	assert.Equal(t, "2026-01-01", dec.NextStart().String(), "year rollover")
}
