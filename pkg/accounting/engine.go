package accounting

import (
	"fmt"
	"time"

	"github.com/raterudder/meterbill/pkg/dispatch"
	"github.com/raterudder/meterbill/pkg/types"
)

// Pricing is the resolved price data of one direction for a cycle.
type Pricing struct {
	Tariff types.TariffDefinition
	// Current is nil when the tariff has no price at the cycle's instant.
	Current *types.PriceSlot
	// Next is nil when Current is.
	Next *types.PriceSlot
}

// Event is everything a single poll cycle observed.
type Event struct {
	At         time.Time
	Location   *time.Location
	BillingDay int
	NewDay     bool

	Reading types.MeterReading
	Import  Pricing
	Export  Pricing

	// Dispatches is only consulted when HasDispatches is set.
	Dispatches    []types.DispatchWindow
	HasDispatches bool
}

// Handler folds an Event into a State.
type Handler interface {
	Apply(ev Event, st *State) error
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ev Event, st *State) error

func (f HandlerFunc) Apply(ev Event, st *State) error {
	return f(ev, st)
}

// Engine applies handlers in order.
type Engine struct {
	handlers []Handler
}

// NewEngine returns an Engine running the given handlers in order.
func NewEngine(handlers ...Handler) *Engine {
	return &Engine{handlers: handlers}
}

// DefaultEngine returns an Engine with the slot, meter and dispatch handlers.
func DefaultEngine() *Engine {
	return NewEngine(TariffSlotHandler{}, MeterHandler{}, DispatchHandler{})
}

// Apply returns the state after ev. prev is never modified and nothing is
// returned when a handler fails.
func (e *Engine) Apply(prev State, ev Event) (State, error) {
	next := prev
	for _, h := range e.handlers {
		if err := h.Apply(ev, &next); err != nil {
			return State{}, fmt.Errorf("failed to apply %T: %w", h, err)
		}
	}
	return next, nil
}

// TariffSlotHandler records the current and next price, quartile and slot
// times of both directions.
type TariffSlotHandler struct{}

func (TariffSlotHandler) Apply(ev Event, st *State) error {
	applySlot(&st.Import, ev.Import)
	applySlot(&st.Export, ev.Export)
	return nil
}

func applySlot(d *DirectionState, p Pricing) {
	d.Price, d.Quartile, d.SlotStart = nil, nil, nil
	d.NextPrice, d.NextQuartile, d.NextSlotStart = nil, nil, nil

	if cur := p.Current; cur != nil {
		d.SlotStart = ptr(cur.ThisSlotStart)
		if cur.Priced() {
			d.Price = ptr(cur.Price.UnitRate)
		}
		if cur.Quartile != nil {
			d.Quartile = ptr(float64(*cur.Quartile))
		}
	}
	if next := p.Next; next != nil {
		d.NextSlotStart = ptr(next.ThisSlotStart)
		if next.Priced() {
			d.NextPrice = ptr(next.Price.UnitRate)
		}
		if next.Quartile != nil {
			d.NextQuartile = ptr(float64(*next.Quartile))
		}
	}
}

// MeterHandler records the instantaneous demand and runs the
// PeriodAccountant.
type MeterHandler struct {
	Accountant PeriodAccountant
}

func (h MeterHandler) Apply(ev Event, st *State) error {
	st.DemandW = ptr(ev.Reading.DemandW)
	readAt := ev.Reading.ReadAt
	if readAt.IsZero() {
		readAt = ev.At
	}
	st.ReadAt = ptr(readAt)
	return h.Accountant.Apply(ev, st)
}

// DispatchHandler records whether a dispatch window is in force and what is
// planned after it. It leaves the dispatch state alone when the cycle had no
// plan.
type DispatchHandler struct{}

func (DispatchHandler) Apply(ev Event, st *State) error {
	if !ev.HasDispatches {
		return nil
	}

	current, ok := dispatch.Current(ev.At, ev.Dispatches)
	st.Dispatching = ptr(ok)
	st.DispatchEnd = nil
	if ok {
		st.DispatchEnd = ptr(dispatch.Extend(current.End))
	}

	future := dispatch.Future(ev.At, ev.Dispatches)
	st.NextDispatchStart = nil
	if earliest := dispatch.Earliest(future); len(earliest) > 0 {
		st.NextDispatchStart = ptr(dispatch.Advance(earliest[0].Start))
	}

	var energy float64
	for _, w := range future {
		energy += w.EnergyAddedKWH
	}
	st.PlannedDispatches = ptr(float64(len(future)))
	st.PlannedDispatchEnergy = ptr(energy)
	return nil
}
