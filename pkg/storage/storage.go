package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/meterbill/pkg/types"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
)

// Database persists devices and their named capability values.
type Database interface {
	// Capabilities
	// Get returns nil when the capability was never set on the device.
	Get(ctx context.Context, deviceID, name string) (*types.CapabilityValue, error)
	// Set stores value and reports whether it differs from the stored one.
	Set(ctx context.Context, deviceID, name string, value types.CapabilityValue) (bool, error)
	List(ctx context.Context, deviceID string) (map[string]types.CapabilityValue, error)

	// Devices
	// Device returns ErrDeviceNotFound when the device does not exist.
	Device(ctx context.Context, deviceID string) (types.DeviceSettings, error)
	Devices(ctx context.Context) ([]types.DeviceSettings, error)
	PutDevice(ctx context.Context, device types.DeviceSettings) error

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "memory", "Storage provider to use (available: memory, firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "memory":
			p.Database = NewMemory()
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

// DeviceStore scopes a Database to a single device.
type DeviceStore struct {
	DB       Database
	DeviceID string
}

// ForDevice returns the capabilities of deviceID.
func ForDevice(db Database, deviceID string) DeviceStore {
	return DeviceStore{DB: db, DeviceID: deviceID}
}

func (d DeviceStore) Get(ctx context.Context, name string) (*types.CapabilityValue, error) {
	return d.DB.Get(ctx, d.DeviceID, name)
}

func (d DeviceStore) Set(ctx context.Context, name string, value types.CapabilityValue) (bool, error) {
	return d.DB.Set(ctx, d.DeviceID, name, value)
}
