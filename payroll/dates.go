/*
Date handling for the calculation pipeline.

PURPOSE:
  Day-granular dates for period boundaries, employment spans, leave and
  working-day records. A Date is always UTC midnight so equality and
  ordering never depend on wall-clock components.

KEY CONCEPTS:
  - Workday: Monday through Friday. Leave and working-day overrides only
    count against pay when they fall on a workday
  - Half-open ranges: day scans iterate [start, end) one day at a time
*/
package payroll

import "time"

// Date is a day-granular point in time, normalized to UTC midnight.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time to its day in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, m, d)
}

func Today() Date { return DateOf(time.Now()) }

func (d Date) Time() time.Time   { return d.t }
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) IsZero() bool      { return d.t.IsZero() }

func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }
func (d Date) AddYears(n int) Date  { return Date{t: d.t.AddDate(n, 0, 0)} }

func (d Date) Before(o Date) bool        { return d.t.Before(o.t) }
func (d Date) After(o Date) bool         { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool         { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.t.After(o.t) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.t.Before(o.t) }

// DaysUntil returns the number of days from d to o. Negative when o is
// earlier.
func (d Date) DaysUntil(o Date) int {
	return int(o.t.Sub(d.t) / (24 * time.Hour))
}

// IsWorkday reports whether the date falls Monday through Friday.
func (d Date) IsWorkday() bool {
	wd := d.t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func (d Date) Weekday() time.Weekday { return d.t.Weekday() }

func (d Date) String() string { return d.t.Format("2006-01-02") }

// ParseDate parses the "2006-01-02" form String produces. An empty
// string yields the zero Date.
func ParseDate(s string) (Date, error) {
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// MarshalJSON/UnmarshalJSON keep the wire format a bare calendar day.

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(`"2006-01-02"`, s)
	if err != nil {
		return err
	}
	*d = DateOf(t)
	return nil
}

// WorkdaysBetween counts workdays in the half-open range [start, end).
func WorkdaysBetween(start, end Date) int {
	n := 0
	for day := start; day.Before(end); day = day.AddDays(1) {
		if day.IsWorkday() {
			n++
		}
	}
	return n
}

// WorkdaysFrom counts workdays in [start, start+totalDays).
func WorkdaysFrom(start Date, totalDays int) int {
	return WorkdaysBetween(start, start.AddDays(totalDays))
}

func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}
