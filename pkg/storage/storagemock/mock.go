package storagemock

import (
	"context"

	"github.com/raterudder/meterbill/pkg/storage"
	"github.com/raterudder/meterbill/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) Get(ctx context.Context, deviceID, name string) (*types.CapabilityValue, error) {
	args := m.Called(ctx, deviceID, name)
	if v := args.Get(0); v != nil {
		return v.(*types.CapabilityValue), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) Set(ctx context.Context, deviceID, name string, value types.CapabilityValue) (bool, error) {
	args := m.Called(ctx, deviceID, name, value)
	return args.Bool(0), args.Error(1)
}

func (m *MockDatabase) List(ctx context.Context, deviceID string) (map[string]types.CapabilityValue, error) {
	args := m.Called(ctx, deviceID)
	if v := args.Get(0); v != nil {
		return v.(map[string]types.CapabilityValue), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) Device(ctx context.Context, deviceID string) (types.DeviceSettings, error) {
	args := m.Called(ctx, deviceID)
	if len(args) > 0 {
		return args.Get(0).(types.DeviceSettings), args.Error(1)
	}
	return types.DeviceSettings{}, nil
}

func (m *MockDatabase) Devices(ctx context.Context) ([]types.DeviceSettings, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]types.DeviceSettings), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) PutDevice(ctx context.Context, device types.DeviceSettings) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
