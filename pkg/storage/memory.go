package storage

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/raterudder/meterbill/pkg/types"
)

// Memory keeps everything in process. It is used for tests and single-shot
// runs where nothing needs to survive a restart.
type Memory struct {
	mu           sync.Mutex
	devices      map[string]types.DeviceSettings
	capabilities map[string]map[string]types.CapabilityValue
}

var _ Database = (*Memory)(nil)

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		devices:      make(map[string]types.DeviceSettings),
		capabilities: make(map[string]map[string]types.CapabilityValue),
	}
}

func (m *Memory) Get(ctx context.Context, deviceID, name string) (*types.CapabilityValue, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("deviceID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.capabilities[deviceID][name]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *Memory) Set(ctx context.Context, deviceID, name string, value types.CapabilityValue) (bool, error) {
	if deviceID == "" {
		return false, fmt.Errorf("deviceID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	caps, ok := m.capabilities[deviceID]
	if !ok {
		caps = make(map[string]types.CapabilityValue)
		m.capabilities[deviceID] = caps
	}
	prev, ok := caps[name]
	caps[name] = value
	return !ok || !prev.Equal(value), nil
}

func (m *Memory) List(ctx context.Context, deviceID string) (map[string]types.CapabilityValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.capabilities[deviceID]), nil
}

func (m *Memory) Device(ctx context.Context, deviceID string) (types.DeviceSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return types.DeviceSettings{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return d, nil
}

func (m *Memory) Devices(ctx context.Context) ([]types.DeviceSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices := slices.Collect(maps.Values(m.devices))
	slices.SortFunc(devices, func(a, b types.DeviceSettings) int {
		return strings.Compare(a.ID, b.ID)
	})
	return devices, nil
}

func (m *Memory) PutDevice(ctx context.Context, device types.DeviceSettings) error {
	if device.ID == "" {
		return fmt.Errorf("deviceID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[device.ID] = device
	return nil
}

func (m *Memory) Close() error {
	return nil
}
