package types

import "time"

// MeterReading is one observation of a meter's cumulative counters.
type MeterReading struct {
	// ImportEnergyWH and ExportEnergyWH never decrease for a given meter.
	ImportEnergyWH float64   `json:"importEnergyWh"`
	ExportEnergyWH float64   `json:"exportEnergyWh"`
	DemandW        float64   `json:"demand"`
	ReadAt         time.Time `json:"readAt"`
}

// ImportKWH returns the cumulative import counter in kWh.
func (r MeterReading) ImportKWH() float64 {
	return r.ImportEnergyWH / 1000
}

// ExportKWH returns the cumulative export counter in kWh.
func (r MeterReading) ExportKWH() float64 {
	return r.ExportEnergyWH / 1000
}

// DispatchWindow is a utility-declared interval during which a smart device
// shifts load. Windows of one device may overlap.
type DispatchWindow struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Type           string    `json:"type"`
	EnergyAddedKWH float64   `json:"energyAddedKwh"`
}
