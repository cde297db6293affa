package meter

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/meterbill/pkg/types"
)

// MockProfile shapes the simulated household.
type MockProfile struct {
	// HomeKW is the average load, which swings by half a kW either way.
	HomeKW float64 `json:"homeKw"`
	// SolarPeakKW is the generation at 12:30 local time.
	SolarPeakKW float64 `json:"solarPeakKw"`
}

// Mock simulates a grid meter from a fixed daily load and solar curve. The
// same sequence of reading times always yields the same readings.
type Mock struct {
	profile  MockProfile
	location *time.Location

	mu        sync.Mutex
	last      time.Time
	importWH  float64
	exportWH  float64
	lastNetKW float64
}

// NewMock returns a Mock whose counters start at zero.
func NewMock(profile MockProfile, loc *time.Location) *Mock {
	if loc == nil {
		loc = time.UTC
	}
	return &Mock{profile: profile, location: loc}
}

func configuredMock() Factory {
	profile := MockProfile{HomeKW: 1.5, SolarPeakKW: 3}
	lflag.JSON(&profile, "mock-meter-profile", profile, "JSON profile of the mock meter (homeKw, solarPeakKw)")

	return func(device types.DeviceSettings) (Source, error) {
		loc, err := device.LoadLocation()
		if err != nil {
			return nil, err
		}
		return NewMock(profile, loc), nil
	}
}

// netKW is home load minus solar at the given local time.
func (m *Mock) netKW(t time.Time) float64 {
	t = t.In(m.location)
	hour := float64(t.Hour()) + float64(t.Minute())/60.0

	// predictable load on a sine wave that peaks every 2 hours
	home := max(m.profile.HomeKW+0.5*math.Sin(hour*math.Pi), 0)

	// bell curve peaking at 12:30
	var solar float64
	if hour >= 6 && hour <= 19 {
		solar = m.profile.SolarPeakKW * math.Sin((hour-6)/13*math.Pi)
	}
	return home - solar
}

// Reading advances the counters in 5 minute steps up to at. A time before the
// last reading returns the last counters unchanged.
func (m *Mock) Reading(ctx context.Context, at time.Time) (types.MeterReading, error) {
	if at.IsZero() {
		return types.MeterReading{}, fmt.Errorf("%w: zero reading time", types.ErrDataUnavailable)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.last.IsZero() {
		m.last = at
		m.lastNetKW = m.netKW(at)
	}

	for step := m.last; step.Before(at); {
		end := step.Add(5 * time.Minute)
		if end.After(at) {
			end = at
		}
		hours := end.Sub(step).Hours()
		net := m.netKW(step.Add(end.Sub(step) / 2))
		if net > 0 {
			m.importWH += net * hours * 1000
		} else {
			m.exportWH += -net * hours * 1000
		}
		m.lastNetKW = net
		step = end
		m.last = end
	}

	return types.MeterReading{
		ImportEnergyWH: m.importWH,
		ExportEnergyWH: m.exportWH,
		DemandW:        m.lastNetKW * 1000,
		ReadAt:         m.last,
	}, nil
}
