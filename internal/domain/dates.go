package domain

import "time"

// DateLayout is the calendar-date format used for streak bookkeeping.
const DateLayout = "2006-01-02"

// DateOf formats t as a calendar date in loc.
func DateOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// Yesterday returns the calendar date preceding day. It returns "" if day
// does not parse.
func Yesterday(day string) string {
	t, err := time.Parse(DateLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(DateLayout)
}
