package utility

import (
	"context"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/meterbill/pkg/types"
)

// Static serves fixed tariff definitions.
type Static struct {
	mu      sync.Mutex
	tariffs map[types.Direction]types.TariffDefinition
}

// NewStatic returns a Static provider with no tariffs.
func NewStatic() *Static {
	return &Static{tariffs: make(map[types.Direction]types.TariffDefinition)}
}

func configuredStatic() *Static {
	s := NewStatic()
	var imp, exp types.TariffJSON
	lflag.JSON(&imp, "static-import-tariff", imp, "JSON import tariff definition, with a \"type\" of simple or halfHourly")
	lflag.JSON(&exp, "static-export-tariff", exp, "JSON export tariff definition, with a \"type\" of simple or halfHourly")

	lflag.Do(func() {
		if imp.Definition != nil {
			s.SetTariff(types.DirectionImport, imp.Definition)
		}
		if exp.Definition != nil {
			s.SetTariff(types.DirectionExport, exp.Definition)
		}
	})
	return s
}

// SetTariff replaces the definition served for dir.
func (s *Static) SetTariff(dir types.Direction, def types.TariffDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tariffs[dir] = def
}

func (s *Static) Tariff(ctx context.Context, dir types.Direction, at time.Time) (types.TariffDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.tariffs[dir]
	if !ok {
		return nil, unavailable(dir, "static")
	}
	return def, nil
}
