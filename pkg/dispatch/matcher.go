package dispatch

import (
	"time"

	"github.com/raterudder/meterbill/pkg/types"
)

// Advance rounds t down to the half hour (minute 0 or 30) in t's location.
func Advance(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), (t.Minute()/30)*30, 0, 0, t.Location())
}

// Extend adds 29 minutes to t then rounds down to the half hour. This is not
// a ceiling: seconds are ignored, so 10:00:30 extends to 10:00, not 10:30.
func Extend(t time.Time) time.Time {
	return Advance(t.Add(29 * time.Minute))
}

// Current returns the window in force at t, if any. A window is in force when
// Advance(start) < t < Extend(end). When several windows overlap t the one
// with the earliest snapped start wins and list order breaks ties.
func Current(t time.Time, windows []types.DispatchWindow) (types.DispatchWindow, bool) {
	var (
		best      types.DispatchWindow
		bestStart time.Time
		found     bool
	)
	for _, w := range windows {
		start := Advance(w.Start)
		if !start.Before(t) || !t.Before(Extend(w.End)) {
			continue
		}
		if !found || start.Before(bestStart) {
			best, bestStart, found = w, start, true
		}
	}
	return best, found
}

// Future returns the windows whose snapped start is after t, in list order.
func Future(t time.Time, windows []types.DispatchWindow) []types.DispatchWindow {
	var future []types.DispatchWindow
	for _, w := range windows {
		if Advance(w.Start).After(t) {
			future = append(future, w)
		}
	}
	return future
}

// Earliest returns every window starting at the minimum start of the set.
// More than one window is returned when starts tie.
func Earliest(windows []types.DispatchWindow) []types.DispatchWindow {
	if len(windows) == 0 {
		return nil
	}
	first := windows[0].Start
	for _, w := range windows[1:] {
		if w.Start.Before(first) {
			first = w.Start
		}
	}
	var earliest []types.DispatchWindow
	for _, w := range windows {
		if w.Start.Equal(first) {
			earliest = append(earliest, w)
		}
	}
	return earliest
}
