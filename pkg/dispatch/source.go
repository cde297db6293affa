package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/meterbill/pkg/types"
)

// Source supplies the planned dispatch windows for a device.
type Source interface {
	// DispatchWindows returns the device's windows. It returns an error
	// wrapping types.ErrDataUnavailable when the device has no plan.
	DispatchWindows(ctx context.Context, deviceID string) ([]types.DispatchWindow, error)
}

// Static serves dispatch plans held in memory, keyed by device id.
type Static struct {
	mu    sync.Mutex
	plans map[string][]types.DispatchWindow
}

// NewStatic returns an empty Static source.
func NewStatic() *Static {
	return &Static{plans: make(map[string][]types.DispatchWindow)}
}

// Configured returns a Static source loaded from the dispatch-plan flag.
func Configured() *Static {
	s := NewStatic()
	plans := map[string][]types.DispatchWindow{}
	lflag.JSON(&plans, "dispatch-plan", plans, "JSON map of device id to planned dispatch windows")

	lflag.Do(func() {
		for id, windows := range plans {
			s.SetPlan(id, windows)
		}
	})
	return s
}

// SetPlan replaces the plan of a device.
func (s *Static) SetPlan(deviceID string, windows []types.DispatchWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[deviceID] = append([]types.DispatchWindow(nil), windows...)
}

func (s *Static) DispatchWindows(ctx context.Context, deviceID string) ([]types.DispatchWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	windows, ok := s.plans[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: no dispatch plan for device %s", types.ErrDataUnavailable, deviceID)
	}
	return append([]types.DispatchWindow(nil), windows...), nil
}
