package tariff

import (
	"errors"
	"fmt"
	"time"

	"github.com/raterudder/meterbill/pkg/types"
)

// ErrNoPrice is returned when a tariff has no rate covering the requested
// instant. It is never substituted with a zero price.
var ErrNoPrice = errors.New("no price available")

// Resolver resolves tariff definitions to price slots using civil day
// boundaries in its location.
type Resolver struct {
	location *time.Location
}

// NewResolver returns a Resolver for the given time zone.
func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{location: loc}
}

// Location returns the zone boundaries are computed in.
func (r *Resolver) Location() *time.Location {
	return r.location
}

// Resolve returns the slot in force at t.
func (r *Resolver) Resolve(def types.TariffDefinition, t time.Time) (types.PriceSlot, error) {
	switch d := def.(type) {
	case *types.SimpleTariff:
		return r.resolveSimple(d, t), nil
	case *types.HalfHourlyTariff:
		return r.resolveHalfHourly(d, t)
	case nil:
		return types.PriceSlot{}, fmt.Errorf("nil tariff definition")
	default:
		return types.PriceSlot{}, fmt.Errorf("unsupported tariff definition %T", def)
	}
}

// ResolveNext returns the slot following current. When the tariff has no
// price there, a placeholder slot starting at current.NextSlotStart with no
// price fields is returned.
func (r *Resolver) ResolveNext(def types.TariffDefinition, current types.PriceSlot) (types.PriceSlot, error) {
	next, err := r.Resolve(def, current.NextSlotStart)
	if errors.Is(err, ErrNoPrice) {
		return types.PriceSlot{
			ThisSlotStart: current.NextSlotStart,
			HalfHourly:    current.HalfHourly,
		}, nil
	}
	return next, err
}

func (r *Resolver) resolveSimple(d *types.SimpleTariff, t time.Time) types.PriceSlot {
	start := StartOfDay(t, r.location)
	return types.PriceSlot{
		Price: &types.SlotPrice{
			UnitRate:             d.UnitRate,
			PreVATUnitRate:       d.PreVATUnitRate,
			StandingCharge:       d.StandingCharge,
			PreVATStandingCharge: d.PreVATStandingCharge,
		},
		ThisSlotStart: start,
		NextSlotStart: start.AddDate(0, 0, 1),
	}
}

func (r *Resolver) resolveHalfHourly(d *types.HalfHourlyTariff, t time.Time) (types.PriceSlot, error) {
	for _, rate := range d.Rates {
		if !rate.Contains(t) {
			continue
		}

		slot := types.PriceSlot{
			Price: &types.SlotPrice{
				UnitRate:             rate.Value,
				PreVATUnitRate:       rate.PreVATValue,
				StandingCharge:       d.StandingCharge,
				PreVATStandingCharge: d.PreVATStandingCharge,
			},
			ThisSlotStart: rate.ValidFrom,
			NextSlotStart: rate.ValidTo,
			HalfHourly:    true,
		}

		dayStart := StartOfDay(t, r.location)
		if classify, ok := Classify(d.Rates, dayStart, dayStart.AddDate(0, 0, 1)); ok {
			q := classify(rate.Value)
			slot.Quartile = &q
		}
		return slot, nil
	}
	return types.PriceSlot{}, ErrNoPrice
}
