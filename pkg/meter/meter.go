package meter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raterudder/meterbill/pkg/types"
)

// Source reads a device's grid meter.
type Source interface {
	// Reading returns the latest observation at or before at. It returns an
	// error wrapping types.ErrDataUnavailable when there is none.
	Reading(ctx context.Context, at time.Time) (types.MeterReading, error)
}

// Factory builds the Source of one device.
type Factory func(device types.DeviceSettings) (Source, error)

// Configured sets up the meter sources and returns a Map.
func Configured() *Map {
	m := NewMap()
	m.SetFactory("mock", configuredMock())
	m.SetFactory("givenergy", configuredGivEnergy())
	return m
}

// Map creates and keeps one Source per device.
type Map struct {
	mu        sync.Mutex
	factories map[string]Factory
	sources   map[string]Source
}

// NewMap creates a new meter Map.
func NewMap() *Map {
	return &Map{
		factories: make(map[string]Factory),
		sources:   make(map[string]Source),
	}
}

// SetFactory registers the factory used for devices naming the source.
func (m *Map) SetFactory(name string, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[name] = f
}

// SetSource sets the source for a specific device. This is primarily used for testing.
func (m *Map) SetSource(deviceID string, s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[deviceID] = s
}

// Device returns the source for the device, creating it on first use.
func (m *Map) Device(device types.DeviceSettings) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sources[device.ID]; ok {
		return s, nil
	}
	f, ok := m.factories[device.MeterSource]
	if !ok {
		return nil, fmt.Errorf("unknown meter source: %s", device.MeterSource)
	}
	s, err := f(device)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s meter for %s: %w", device.MeterSource, device.ID, err)
	}
	m.sources[device.ID] = s
	return s, nil
}
