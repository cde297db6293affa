package tariff

import (
	"math"
	"time"

	"github.com/raterudder/meterbill/pkg/types"
)

// Classifier ranks a rate value into quartile 0 (cheapest) to 3.
type Classifier func(value float64) int

// Classify builds a Classifier over the rates ending within (dayStart,
// dayEnd]. The full day's set must be passed; a partial window would shift
// the range. ok is false when no rate ends within the day.
func Classify(rates []types.Rate, dayStart, dayEnd time.Time) (Classifier, bool) {
	var (
		lo, hi float64
		found  bool
	)
	for _, r := range rates {
		if !r.ValidTo.After(dayStart) || r.ValidTo.After(dayEnd) {
			continue
		}
		if !found {
			lo, hi = r.Value, r.Value
			found = true
			continue
		}
		lo = min(lo, r.Value)
		hi = max(hi, r.Value)
	}
	if !found {
		return nil, false
	}

	step := (hi - lo) / 4
	return func(v float64) int {
		// every rate is the same price
		if step == 0 {
			return 0
		}
		q := int(math.Floor((v - lo) / step))
		return max(0, min(3, q))
	}, true
}
