package source

import (
	"context"
	"math"
	"time"
)

// SimulatedHeatPump produces plausible readings without touching the vendor
// API. Used by --simulate mode and by the collector tests.
type SimulatedHeatPump struct {
	start time.Time
}

func NewSimulatedHeatPump() *SimulatedHeatPump {
	return &SimulatedHeatPump{start: time.Now().UTC()}
}

func (s *SimulatedHeatPump) ReadSnapshot(_ context.Context, now time.Time) (*HeatPumpReading, error) {
	// Slow sine over the day so derived metrics move but stay plausible.
	phase := now.Sub(s.start).Hours() * 2 * math.Pi / 24

	outside := 5.0 + 5.0*math.Sin(phase)
	supply := 35.0 + 2.0*math.Sin(phase/2)
	ret := supply - 5.0
	modulation := 40.0 + 20.0*math.Sin(phase*3)

	cfg, err := s.ReadConfig(context.Background(), now)
	if err != nil {
		return nil, err
	}

	return &HeatPumpReading{
		Timestamp:             now,
		OutsideTemperature:    Float64(round1(outside)),
		ReturnTemperature:     Float64(round1(ret)),
		DHWStorageTemperature: Float64(48.5),
		Circuits: []CircuitReading{
			{CircuitID: 0, SupplyTemperature: Float64(round1(supply)), PumpStatus: String("on")},
		},
		CompressorModulation:   Float64(round1(modulation)),
		RatedPowerKW:           Float64(16.0),
		CompressorRuntimeHours: Float64(round1(now.Sub(s.start).Hours())),
		CirculationPumpActive:  true,
		Configuration:          cfg,
	}, nil
}

func (s *SimulatedHeatPump) ReadConfig(_ context.Context, _ time.Time) (*ConfigSnapshot, error) {
	schedule := &WeeklySchedule{
		Active: true,
		Mon:    []TimeSlot{{Start: "06:00", End: "22:00", Mode: "normal", Position: 0}},
		Sat:    []TimeSlot{{Start: "07:00", End: "23:00", Mode: "comfort", Position: 0}},
	}

	return &ConfigSnapshot{
		Circuits: []CircuitConfig{
			{
				CircuitID:   0,
				Name:        String("Heizkreis"),
				TempComfort: Float64(22.0),
				TempNormal:  Float64(20.0),
				TempReduced: Float64(18.0),
				Schedule:    schedule,
			},
		},
		DHW: &DHWConfig{
			Active:     true,
			TempTarget: Float64(50.0),
			Schedule:   schedule,
		},
	}, nil
}

// SimulatedPowerMeter produces a load curve loosely following compressor
// behaviour: base load plus a modulated component.
type SimulatedPowerMeter struct {
	start  time.Time
	energy float64
	last   time.Time
}

func NewSimulatedPowerMeter() *SimulatedPowerMeter {
	now := time.Now().UTC()
	return &SimulatedPowerMeter{start: now, last: now}
}

func (s *SimulatedPowerMeter) ReadSnapshot(_ context.Context, now time.Time) (*PowerReading, error) {
	phase := now.Sub(s.start).Hours() * 2 * math.Pi / 24
	watts := 1800.0 + 900.0*math.Sin(phase*3)

	if !now.Before(s.last) {
		s.energy += watts * now.Sub(s.last).Hours()
		s.last = now
	}

	return &PowerReading{
		Timestamp:     now,
		PowerWatts:    round1(watts),
		Voltage:       Float64(230.1),
		Current:       Float64(round1(watts / 230.1)),
		TotalEnergyWh: Float64(round1(s.energy)),
	}, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
