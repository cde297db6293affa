package poller

import (
	"time"

	"github.com/raterudder/meterbill/pkg/tariff"
)

// DayDetector signals the first cycle of a local day. With Period equal to the
// poll interval exactly one cycle per day falls inside the window.
type DayDetector struct {
	Period time.Duration
}

// IsNewDay reports whether at is less than Period past local midnight in at's
// location.
func (d DayDetector) IsNewDay(at time.Time) bool {
	return at.Sub(tariff.StartOfDay(at, at.Location())) < d.Period
}
