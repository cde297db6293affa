package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Direction is the flow of energy a tariff prices.
type Direction string

const (
	DirectionImport Direction = "import"
	DirectionExport Direction = "export"
)

// TariffKind discriminates the TariffDefinition variants.
type TariffKind string

const (
	TariffKindSimple     TariffKind = "simple"
	TariffKindHalfHourly TariffKind = "halfHourly"
)

// TariffDefinition is either a *SimpleTariff or a *HalfHourlyTariff. The
// variant is decided once when the definition is built or decoded and callers
// switch on the concrete type.
type TariffDefinition interface {
	Kind() TariffKind
	// StandingCharges returns the daily standing charge including and
	// excluding VAT, in minor currency units (pence) per day.
	StandingCharges() (incVAT float64, excVAT float64)
}

// SimpleTariff is a flat-rate tariff with a single unit rate for every hour.
type SimpleTariff struct {
	// UnitRate is in currency per kWh.
	UnitRate             float64 `json:"unitRate"`
	PreVATUnitRate       float64 `json:"preVatUnitRate"`
	StandingCharge       float64 `json:"standingCharge"`
	PreVATStandingCharge float64 `json:"preVatStandingCharge"`
}

func (*SimpleTariff) Kind() TariffKind { return TariffKindSimple }

func (t *SimpleTariff) StandingCharges() (float64, float64) {
	return t.StandingCharge, t.PreVATStandingCharge
}

// Rate is a single dated rate record of a half-hourly tariff, valid for
// [ValidFrom, ValidTo).
type Rate struct {
	Value       float64   `json:"value"`
	PreVATValue float64   `json:"preVatValue"`
	ValidFrom   time.Time `json:"validFrom"`
	ValidTo     time.Time `json:"validTo"`
}

// Contains reports whether t falls in [ValidFrom, ValidTo).
func (r Rate) Contains(t time.Time) bool {
	return !t.Before(r.ValidFrom) && t.Before(r.ValidTo)
}

// HalfHourlyTariff is a tariff whose price varies by dated rate records.
type HalfHourlyTariff struct {
	StandingCharge       float64 `json:"standingCharge"`
	PreVATStandingCharge float64 `json:"preVatStandingCharge"`
	Rates                []Rate  `json:"rates"`
}

func (*HalfHourlyTariff) Kind() TariffKind { return TariffKindHalfHourly }

func (t *HalfHourlyTariff) StandingCharges() (float64, float64) {
	return t.StandingCharge, t.PreVATStandingCharge
}

// TariffJSON is the wire form of a TariffDefinition. The "type" field selects
// the variant.
type TariffJSON struct {
	Definition TariffDefinition
}

type tariffEnvelope struct {
	Type TariffKind `json:"type"`
}

// UnmarshalJSON decodes the variant named by the "type" field.
func (t *TariffJSON) UnmarshalJSON(b []byte) error {
	var env tariffEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	switch env.Type {
	case TariffKindSimple:
		var s SimpleTariff
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("failed to decode simple tariff: %w", err)
		}
		t.Definition = &s
	case TariffKindHalfHourly:
		var h HalfHourlyTariff
		if err := json.Unmarshal(b, &h); err != nil {
			return fmt.Errorf("failed to decode half-hourly tariff: %w", err)
		}
		t.Definition = &h
	default:
		return fmt.Errorf("unknown tariff type: %q", env.Type)
	}
	return nil
}

// MarshalJSON encodes the definition along with its "type" discriminator.
func (t TariffJSON) MarshalJSON() ([]byte, error) {
	switch d := t.Definition.(type) {
	case *SimpleTariff:
		return json.Marshal(struct {
			Type TariffKind `json:"type"`
			*SimpleTariff
		}{TariffKindSimple, d})
	case *HalfHourlyTariff:
		return json.Marshal(struct {
			Type TariffKind `json:"type"`
			*HalfHourlyTariff
		}{TariffKindHalfHourly, d})
	case nil:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unknown tariff definition %T", d)
	}
}

// SlotPrice holds the price fields of a resolved slot.
type SlotPrice struct {
	UnitRate             float64 `json:"unitRate"`
	PreVATUnitRate       float64 `json:"preVatUnitRate"`
	StandingCharge       float64 `json:"standingCharge"`
	PreVATStandingCharge float64 `json:"preVatStandingCharge"`
}

// PriceSlot is the price in force for one interval. Price is nil for a
// placeholder slot, which is returned when the slot after a resolvable one
// has no price.
type PriceSlot struct {
	Price         *SlotPrice `json:"price"`
	ThisSlotStart time.Time  `json:"thisSlotStart"`
	NextSlotStart time.Time  `json:"nextSlotStart"`
	// Quartile is nil for simple tariffs.
	Quartile   *int `json:"quartile"`
	HalfHourly bool `json:"isHalfHourly"`
}

// Priced reports whether the slot carries prices.
func (p PriceSlot) Priced() bool {
	return p.Price != nil
}
