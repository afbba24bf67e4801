package source

import "time"

// CircuitReading holds per-heating-circuit sensor values.
type CircuitReading struct {
	CircuitID         int
	SupplyTemperature *float64
	PumpStatus        *string
}

// HeatPumpReading is one batched snapshot of the heat pump. Optional sensor
// values are pointers; nil means the field was absent this tick, never zero.
type HeatPumpReading struct {
	Timestamp time.Time

	OutsideTemperature    *float64
	ReturnTemperature     *float64
	DHWStorageTemperature *float64

	Circuits []CircuitReading

	CompressorModulation   *float64 // percent, 0-100
	RatedPowerKW           *float64
	CompressorRuntimeHours *float64

	CirculationPumpActive bool

	// Configuration-bearing subset of the batched fetch, fed to change
	// detection on every successful tick. Nil when the vendor response
	// omitted it.
	Configuration *ConfigSnapshot
}

// PowerReading is one snapshot of the local power meter. Power is the only
// field every supported meter provides.
type PowerReading struct {
	Timestamp time.Time

	PowerWatts    float64
	Voltage       *float64
	Current       *float64
	TotalEnergyWh *float64
}

// Float64 returns a pointer to v. Convenience for building readings.
func Float64(v float64) *float64 {
	return &v
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}
