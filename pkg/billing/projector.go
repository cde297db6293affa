package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Project linearly extrapolates the bill so far over the whole period. ok is
// false when no time has elapsed, in which case the caller must keep its
// previous projection.
func Project(billValueSoFar, elapsedDays, periodLengthDays float64) (float64, bool) {
	if elapsedDays <= 0 {
		return 0, false
	}
	return billValueSoFar / elapsedDays * periodLengthDays, true
}

// Round rounds an amount of money to two decimal places, half away from zero.
func Round(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}

// ElapsedDays returns the fractional number of civil days between start and
// t in loc. Whole days are counted by calendar date so a 23 or 25 hour DST
// day still counts as one, and the partial day is the fraction of t's own
// local day that has elapsed.
func ElapsedDays(start, t time.Time, loc *time.Location) float64 {
	if !t.After(start) {
		return 0
	}
	start = start.In(loc)
	t = t.In(loc)

	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	whole := CivilDaysBetween(start, dayStart, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	// start may itself be part way through a day
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	var offset float64
	if !start.Equal(startDay) {
		startDayEnd := startDay.AddDate(0, 0, 1)
		offset = float64(start.Sub(startDay)) / float64(startDayEnd.Sub(startDay))
	}

	fraction := float64(t.Sub(dayStart)) / float64(dayEnd.Sub(dayStart))
	return float64(whole) + fraction - offset
}

// CivilDaysBetween counts calendar dates from a's date to b's date in loc.
func CivilDaysBetween(a, b time.Time, loc *time.Location) int {
	a = a.In(loc)
	b = b.In(loc)
	// compare dates at noon UTC so neither DST nor leap seconds matter
	da := time.Date(a.Year(), a.Month(), a.Day(), 12, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 12, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
