package rules

import "time"

// DayLayout is the calendar day key format.
const DayLayout = "2006-01-02"

// DayKey returns the calendar day of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayLayout)
}

// PreviousDay returns the day key before day, or "" when day is malformed.
func PreviousDay(day string) string {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(DayLayout)
}

// DaysBetween counts whole calendar days from a to b (b later gives a positive number).
func DaysBetween(a, b string) int {
	ta, err := time.Parse(DayLayout, a)
	if err != nil {
		return 0
	}
	tb, err := time.Parse(DayLayout, b)
	if err != nil {
		return 0
	}
	return int(tb.Sub(ta).Hours() / 24)
}

// StartOfDay returns midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
