package utility

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/meterbill/pkg/tariff"
	"github.com/raterudder/meterbill/pkg/types"
)

// TOUBand prices the local hours [HourStart, HourEnd). A band whose start is
// after its end wraps past midnight.
type TOUBand struct {
	HourStart   int     `json:"hourStart"`
	HourEnd     int     `json:"hourEnd"`
	Rate        float64 `json:"rate"`
	Description string  `json:"description"`
}

// Contains reports whether the local hour falls inside the band.
func (b TOUBand) Contains(hour int) bool {
	if b.HourStart <= b.HourEnd {
		return hour >= b.HourStart && hour < b.HourEnd
	}
	return hour >= b.HourStart || hour < b.HourEnd
}

// TOUSchedule is a repeating daily time-of-use tariff.
type TOUSchedule struct {
	Location       string    `json:"location"`
	StandingCharge float64   `json:"standingCharge"`
	VATRate        float64   `json:"vatRate"`
	Bands          []TOUBand `json:"bands"`
}

// TOU expands daily schedules into half-hourly rates. Bands that overlap add
// together so a peak adder can sit on top of a base rate.
type TOU struct {
	mu        sync.Mutex
	schedules map[types.Direction]TOUSchedule
}

// NewTOU returns a TOU provider with no schedules.
func NewTOU() *TOU {
	return &TOU{schedules: make(map[types.Direction]TOUSchedule)}
}

func configuredTOU() *TOU {
	t := NewTOU()
	schedules := map[types.Direction]TOUSchedule{}
	lflag.JSON(&schedules, "tou-schedules", schedules, "JSON map of direction (import/export) to daily time-of-use schedule")

	lflag.Do(func() {
		for dir, s := range schedules {
			if err := t.SetSchedule(dir, s); err != nil {
				panic(fmt.Sprintf("invalid tou schedule for %s: %v", dir, err))
			}
		}
	})
	return t
}

// SetSchedule validates and stores the schedule for dir.
func (t *TOU) SetSchedule(dir types.Direction, s TOUSchedule) error {
	for _, b := range s.Bands {
		if b.HourStart < 0 || b.HourStart > 23 || b.HourEnd < 0 || b.HourEnd > 24 {
			return fmt.Errorf("band %q hours out of range: %d-%d", b.Description, b.HourStart, b.HourEnd)
		}
	}
	if s.Location == "" {
		s.Location = types.DefaultLocation
	}
	if _, err := time.LoadLocation(s.Location); err != nil {
		return fmt.Errorf("failed to load location %s: %w", s.Location, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.schedules[dir] = s
	return nil
}

func (t *TOU) Tariff(ctx context.Context, dir types.Direction, at time.Time) (types.TariffDefinition, error) {
	t.mu.Lock()
	s, ok := t.schedules[dir]
	t.mu.Unlock()
	if !ok {
		return nil, unavailable(dir, "tou")
	}
	loc, err := time.LoadLocation(s.Location)
	if err != nil {
		return nil, err
	}

	def := &types.HalfHourlyTariff{
		StandingCharge:       s.StandingCharge,
		PreVATStandingCharge: s.StandingCharge / (1 + s.VATRate),
	}
	start := tariff.StartOfDay(at, loc)
	// today and tomorrow so the next slot resolves across midnight
	end := start.AddDate(0, 0, 2)
	for ts := start; ts.Before(end); ts = ts.Add(30 * time.Minute) {
		var (
			rate    float64
			matched bool
		)
		hour := ts.In(loc).Hour()
		for _, b := range s.Bands {
			if b.Contains(hour) {
				rate += b.Rate
				matched = true
			}
		}
		if !matched {
			continue
		}
		def.Rates = append(def.Rates, types.Rate{
			Value:       rate,
			PreVATValue: rate / (1 + s.VATRate),
			ValidFrom:   ts,
			ValidTo:     ts.Add(30 * time.Minute),
		})
	}
	return def, nil
}
