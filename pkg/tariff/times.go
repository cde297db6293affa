package tariff

import "time"

// StartOfDay returns local midnight of t's civil day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// NextDay returns local midnight of the civil day after t's. AddDate is DST
// safe, unlike Add(24*time.Hour).
func NextDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1)
}
