package accounting

import (
	"fmt"
	"time"

	"github.com/raterudder/meterbill/pkg/billing"
	"github.com/raterudder/meterbill/pkg/tariff"
	"github.com/raterudder/meterbill/pkg/types"
)

// PeriodAccountant accumulates energy and money deltas into slot, day and
// billing period totals and derives the bill so far.
type PeriodAccountant struct{}

// Apply folds one meter reading into st.
func (PeriodAccountant) Apply(ev Event, st *State) error {
	if ev.Location == nil {
		return fmt.Errorf("event has no location")
	}
	if ev.BillingDay < 1 || ev.BillingDay > 31 {
		return fmt.Errorf("billing day %d out of range", ev.BillingDay)
	}

	periodReset := advancePeriod(ev, st)
	dayReset := advanceDay(ev, st)

	accumulate(ev.At, &st.Import, ev.Reading.ImportKWH(), ev.Import.Current, dayReset, periodReset)
	accumulate(ev.At, &st.Export, ev.Reading.ExportKWH(), ev.Export.Current, dayReset, periodReset)

	start := *st.PeriodStart
	dayIndex := PeriodDayIndex(start, ev.At, ev.Location)
	length := DaysInMonth(start.In(ev.Location))
	st.PeriodDayIndex = ptr(float64(dayIndex))
	st.PeriodLengthDays = ptr(float64(length))

	importSC := standingCharge(ev.Import.Tariff)
	exportSC := standingCharge(ev.Export.Tariff)
	standing := 0.01 * (exportSC + importSC) * float64(dayIndex)
	st.PeriodStandingCharge = ptr(standing)

	bill := standing + deref(st.Import.PeriodValue) - deref(st.Export.PeriodValue)
	st.BillValueSoFar = ptr(billing.Round(bill))

	elapsed := billing.ElapsedDays(start, ev.At, ev.Location)
	if projected, ok := billing.Project(bill, elapsed, float64(length)); ok {
		st.ProjectedBill = ptr(billing.Round(projected))
	}
	return nil
}

// advancePeriod initialises or moves the period bounds and reports whether
// the period accumulators start over.
func advancePeriod(ev Event, st *State) bool {
	if st.PeriodStart == nil || st.NextPeriodStart == nil {
		start := PeriodStart(ev.At, ev.BillingDay, ev.Location)
		st.PeriodStart = ptr(start)
		st.NextPeriodStart = ptr(NextPeriodStart(start, ev.BillingDay, ev.Location))
		return true
	}
	if !ev.At.After(*st.NextPeriodStart) {
		return false
	}
	start, next := *st.PeriodStart, *st.NextPeriodStart
	for ev.At.After(next) {
		start = next
		next = NextPeriodStart(start, ev.BillingDay, ev.Location)
	}
	st.PeriodStart = ptr(start)
	st.NextPeriodStart = ptr(next)
	return true
}

// advanceDay reports whether the day accumulators start over. The recorded
// local day start carries the boundary, so a day resets at most once and a
// missed midnight still resets. The new day signal only adds a reset when the
// clock has moved back before the recorded day.
func advanceDay(ev Event, st *State) bool {
	today := tariff.StartOfDay(ev.At, ev.Location)
	first := st.DayStart == nil
	signalled := ev.NewDay && !first && !st.DayStart.Equal(today)
	missed := !first && today.After(*st.DayStart)
	if !first && !signalled && !missed {
		return false
	}
	st.DayStart = ptr(today)
	return true
}

func accumulate(at time.Time, d *DirectionState, reading float64, slot *types.PriceSlot, dayReset, periodReset bool) {
	var delta float64
	if d.Meter != nil {
		delta = reading - *d.Meter
		// the meter was replaced or reset, start again from this reading
		if delta < 0 {
			delta = 0
		}
	}
	d.Meter = ptr(reading)

	var value float64
	if slot != nil && slot.Priced() {
		value = delta * slot.Price.UnitRate
	}

	// A nil slot end outside a priced slot marks an unpriced stretch, which
	// accumulates as one slot until a priced slot begins.
	var slotReset bool
	switch {
	case slot != nil:
		slotReset = d.SlotEnd == nil || !at.Before(*d.SlotEnd)
		d.SlotEnd = ptr(slot.NextSlotStart)
	case d.SlotEnd != nil && !at.Before(*d.SlotEnd):
		slotReset = true
		d.SlotEnd = nil
	}
	if slotReset {
		d.SlotEnergy = ptr(delta)
		d.SlotValue = ptr(value)
	} else {
		d.SlotEnergy = ptr(deref(d.SlotEnergy) + delta)
		d.SlotValue = ptr(deref(d.SlotValue) + value)
	}

	if dayReset {
		d.DayEnergy = ptr(delta)
		d.DayValue = ptr(value)
	} else {
		d.DayEnergy = ptr(deref(d.DayEnergy) + delta)
		d.DayValue = ptr(deref(d.DayValue) + value)
	}

	if periodReset {
		d.PeriodEnergy = ptr(delta)
		d.PeriodValue = ptr(value)
	} else {
		d.PeriodEnergy = ptr(deref(d.PeriodEnergy) + delta)
		d.PeriodValue = ptr(deref(d.PeriodValue) + value)
	}
}

func standingCharge(def types.TariffDefinition) float64 {
	if def == nil {
		return 0
	}
	inc, _ := def.StandingCharges()
	return inc
}
