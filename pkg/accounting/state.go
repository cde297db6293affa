package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/raterudder/meterbill/pkg/types"
)

// Store is the per-device capability store the engine reads prior values from
// and writes new values to. Each name is an independent value; nothing
// requires atomicity across names.
type Store interface {
	// Get returns nil when the value was never set.
	Get(ctx context.Context, name string) (*types.CapabilityValue, error)
	// Set reports whether the stored value changed.
	Set(ctx context.Context, name string, value types.CapabilityValue) (bool, error)
}

// DirectionState holds the accumulators of one tariff direction. A nil
// pointer is a value that is unset.
type DirectionState struct {
	// Meter is the cumulative counter seen last cycle in kWh. While it is
	// nil the direction is waiting for its baseline.
	Meter *float64

	SlotEnd      *time.Time
	SlotEnergy   *float64
	SlotValue    *float64
	DayEnergy    *float64
	DayValue     *float64
	PeriodEnergy *float64
	PeriodValue  *float64

	Price         *float64
	NextPrice     *float64
	Quartile      *float64
	NextQuartile  *float64
	SlotStart     *time.Time
	NextSlotStart *time.Time
}

// WaitingForBaseline reports whether no cumulative reading has been recorded.
func (d DirectionState) WaitingForBaseline() bool {
	return d.Meter == nil
}

// State is everything persisted for one device. Handlers replace pointers
// rather than writing through them so a shallow copy of a State is a safe
// snapshot.
type State struct {
	Import DirectionState
	Export DirectionState

	DayStart             *time.Time
	PeriodStart          *time.Time
	NextPeriodStart      *time.Time
	PeriodLengthDays     *float64
	PeriodDayIndex       *float64
	PeriodStandingCharge *float64
	BillValueSoFar       *float64
	ProjectedBill        *float64

	DemandW *float64
	ReadAt  *time.Time

	Dispatching           *bool
	DispatchEnd           *time.Time
	NextDispatchStart     *time.Time
	PlannedDispatches     *float64
	PlannedDispatchEnergy *float64
}

// Direction returns the accumulators for dir.
func (s *State) Direction(dir types.Direction) *DirectionState {
	if dir == types.DirectionExport {
		return &s.Export
	}
	return &s.Import
}

type field struct {
	name string
	num  **float64
	tm   **time.Time
	flag **bool
}

func directionFields(dir types.Direction, d *DirectionState) []field {
	n := func(base string) string { return base + "." + string(dir) }
	return []field{
		{name: n("meter_power"), num: &d.Meter},
		{name: n("slot_end"), tm: &d.SlotEnd},
		{name: n("slot_energy"), num: &d.SlotEnergy},
		{name: n("slot_value"), num: &d.SlotValue},
		{name: n("day_energy"), num: &d.DayEnergy},
		{name: n("day_value"), num: &d.DayValue},
		{name: n("period_energy"), num: &d.PeriodEnergy},
		{name: n("period_value"), num: &d.PeriodValue},
		{name: n("price"), num: &d.Price},
		{name: n("price_next"), num: &d.NextPrice},
		{name: n("quartile"), num: &d.Quartile},
		{name: n("quartile_next"), num: &d.NextQuartile},
		{name: n("slot_start"), tm: &d.SlotStart},
		{name: n("slot_start_next"), tm: &d.NextSlotStart},
	}
}

func (s *State) fields() []field {
	fs := append(directionFields(types.DirectionImport, &s.Import), directionFields(types.DirectionExport, &s.Export)...)
	return append(fs,
		field{name: "day_start", tm: &s.DayStart},
		field{name: "period_start", tm: &s.PeriodStart},
		field{name: "period_start_next", tm: &s.NextPeriodStart},
		field{name: "period_length_days", num: &s.PeriodLengthDays},
		field{name: "period_day_index", num: &s.PeriodDayIndex},
		field{name: "period_standing_charge", num: &s.PeriodStandingCharge},
		field{name: "bill_value", num: &s.BillValueSoFar},
		field{name: "bill_projected", num: &s.ProjectedBill},
		field{name: "measure_power", num: &s.DemandW},
		field{name: "reading_at", tm: &s.ReadAt},
		field{name: "dispatching", flag: &s.Dispatching},
		field{name: "dispatch_end", tm: &s.DispatchEnd},
		field{name: "dispatch_start_next", tm: &s.NextDispatchStart},
		field{name: "dispatch_planned", num: &s.PlannedDispatches},
		field{name: "dispatch_planned_energy", num: &s.PlannedDispatchEnergy},
	)
}

// Names returns every capability name a State is persisted under.
func Names() []string {
	var s State
	fs := s.fields()
	names := make([]string, 0, len(fs))
	for _, f := range fs {
		names = append(names, f.name)
	}
	return names
}

func (f field) value() types.CapabilityValue {
	switch {
	case f.num != nil && *f.num != nil:
		return types.NumberValue(**f.num)
	case f.tm != nil && *f.tm != nil:
		return types.TimeValue(**f.tm)
	case f.flag != nil && *f.flag != nil:
		return types.BoolValue(**f.flag)
	}
	return types.NullValue()
}

func (f field) load(v *types.CapabilityValue) error {
	if v == nil || v.IsNull() {
		return nil
	}
	var want types.ValueKind
	switch {
	case f.num != nil:
		want = types.ValueKindNumber
		if v.Kind == want {
			n := v.Number
			*f.num = &n
			return nil
		}
	case f.tm != nil:
		want = types.ValueKindTime
		if v.Kind == want {
			t := v.Time
			*f.tm = &t
			return nil
		}
	case f.flag != nil:
		want = types.ValueKindBool
		if v.Kind == want {
			b := v.Bool
			*f.flag = &b
			return nil
		}
	}
	return fmt.Errorf("capability %s: expected %s, got %s", f.name, want, v.Kind)
}

// Load reads every named value of a State from the store. Values that were
// never set stay nil.
func Load(ctx context.Context, store Store) (State, error) {
	var s State
	for _, f := range s.fields() {
		v, err := store.Get(ctx, f.name)
		if err != nil {
			return State{}, fmt.Errorf("failed to get capability %s: %w", f.name, err)
		}
		if err := f.load(v); err != nil {
			return State{}, err
		}
	}
	return s, nil
}

// Save writes every named value of s and returns the names that changed.
func Save(ctx context.Context, store Store, s State) ([]string, error) {
	var changed []string
	for _, f := range s.fields() {
		ok, err := store.Set(ctx, f.name, f.value())
		if err != nil {
			return changed, fmt.Errorf("failed to set capability %s: %w", f.name, err)
		}
		if ok {
			changed = append(changed, f.name)
		}
	}
	return changed, nil
}

func ptr[T any](v T) *T {
	return &v
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
