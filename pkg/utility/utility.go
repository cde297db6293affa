package utility

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raterudder/meterbill/pkg/types"
)

// TariffProvider supplies the tariff definition of a direction. Providers
// return an error wrapping types.ErrDataUnavailable when they have nothing for
// the direction.
type TariffProvider interface {
	// Tariff returns the definition in force around at. Half-hourly
	// definitions cover at least at's whole local day.
	Tariff(ctx context.Context, dir types.Direction, at time.Time) (types.TariffDefinition, error)
}

// Configured sets up the tariff providers and returns a Map.
func Configured() *Map {
	m := NewMap()
	m.SetProvider("static", configuredStatic())
	m.SetProvider("tou", configuredTOU())
	m.SetProvider("octopus", configuredOctopus())
	return m
}

// Map manages tariff providers by name.
type Map struct {
	mu        sync.Mutex
	providers map[string]TariffProvider
}

// NewMap creates a new Utility Map.
func NewMap() *Map {
	return &Map{
		providers: make(map[string]TariffProvider),
	}
}

// Provider returns the provider for the given name.
func (m *Map) Provider(name string) (TariffProvider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.providers[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("unknown tariff provider: %s", name)
}

// SetProvider sets the provider for the given name. This is primarily used for testing.
func (m *Map) SetProvider(name string, provider TariffProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[name] = provider
}

func unavailable(dir types.Direction, provider string) error {
	return fmt.Errorf("%w: no %s tariff from %s", types.ErrDataUnavailable, dir, provider)
}
