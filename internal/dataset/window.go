package dataset

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the canonical YYYY-MM-DD form used in queries and flags.
	DateLayout = "2006-01-02"
	// DisplayLayout is the day.month label used on chart axes.
	DisplayLayout = "02.01"
	// ReportLayout is the day.month.year form used in report headers and file names.
	ReportLayout = "02.01.06"
)

// Day truncates t to midnight UTC of its calendar date in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a Day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// DisplayDay formats a date for chart axes ("02.01").
func DisplayDay(t time.Time) string {
	return t.Format(DisplayLayout)
}

// FileToken builds the "{min}-{max}" token naming a report's chart.
func FileToken(start, end time.Time) string {
	return start.Format(ReportLayout) + "-" + end.Format(ReportLayout)
}

// Window is an inclusive range of calendar days.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the trailing window ending yesterday relative to today:
// [today-1-days, today-1].
func NewWindow(today time.Time, days int) Window {
	end := Day(today).AddDate(0, 0, -1)
	return Window{Start: end.AddDate(0, 0, -days), End: end}
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d time.Time) bool {
	d = Day(d)
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) String() string {
	return w.Start.Format(DateLayout) + ".." + w.End.Format(DateLayout)
}
