package accounting

import (
	"time"

	"github.com/raterudder/meterbill/pkg/billing"
)

// DaysInMonth returns the number of days in t's month.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// anchor returns local midnight of day in the given month, clamped to the
// month's last day. The month may be out of range, time.Date normalises it.
func anchor(year int, month time.Month, day int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	day = max(1, min(day, DaysInMonth(first)))
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, loc)
}

// PeriodStart returns the start of the billing period containing t for a
// period anchored on day of the month.
func PeriodStart(t time.Time, day int, loc *time.Location) time.Time {
	t = t.In(loc)
	current := anchor(t.Year(), t.Month(), day, loc)
	if t.Before(current) {
		return anchor(t.Year(), t.Month()-1, day, loc)
	}
	return current
}

// NextPeriodStart returns the start of the period after the one starting at
// start. The next month is anchored on day again, so a period clamped to the
// 28th of February is followed by one starting on the 31st of March.
func NextPeriodStart(start time.Time, day int, loc *time.Location) time.Time {
	start = start.In(loc)
	return anchor(start.Year(), start.Month()+1, day, loc)
}

// PeriodDayIndex returns the 1-based civil day of t within the period
// starting at start.
func PeriodDayIndex(start, t time.Time, loc *time.Location) int {
	return billing.CivilDaysBetween(start, t, loc) + 1
}
