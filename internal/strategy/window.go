package strategy

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used throughout the contract.
const DateLayout = "2006-01-02"

// WindowMonths is the planning horizon of a generated strategy.
const WindowMonths = 3

// DateWindow is the planning range. Start is inclusive; End is the first day
// after the horizon but calendar dates on End are still accepted.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// NewDateWindow returns [today, today+3 months) at day granularity. The
// calendar day is taken in today's location and normalized to UTC midnight.
func NewDateWindow(today time.Time) DateWindow {
	y, m, d := today.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return DateWindow{Start: start, End: start.AddDate(0, WindowMonths, 0)}
}

func (w DateWindow) StartDate() string { return w.Start.Format(DateLayout) }
func (w DateWindow) EndDate() string   { return w.End.Format(DateLayout) }

// Contains reports whether day lies within [Start, End], both inclusive.
func (w DateWindow) Contains(day time.Time) bool {
	return !day.Before(w.Start) && !day.After(w.End)
}

// ContainsDate parses a YYYY-MM-DD string and checks it against the window.
func (w DateWindow) ContainsDate(value string) (bool, error) {
	day, err := time.Parse(DateLayout, value)
	if err != nil {
		return false, fmt.Errorf("date %q is not YYYY-MM-DD", value)
	}
	return w.Contains(day), nil
}
