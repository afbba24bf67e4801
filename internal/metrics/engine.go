package metrics

import (
	"time"

	"github.com/soldalen/heatpumpctl/internal/errors"
)

// waterHeatCapacity is the volumetric heat capacity of water in
// kWh/(m³·K): 1.16 kWh raises one cubic metre by one kelvin.
const waterHeatCapacity = 1.16

// Kind tags a derived metric with the method that produced it.
type Kind string

const (
	KindThermalPowerModulation Kind = "thermal_power_modulation"
	KindThermalPowerDeltaT     Kind = "thermal_power_delta_t"
	KindCOP                    Kind = "cop"
	KindCOPDeltaT              Kind = "cop_delta_t"
)

// Config holds the calibration constants the derivations depend on.
type Config struct {
	RatedPowerKW        float64
	FlowRateM3H         float64
	MinElectricalPowerW float64
	COPMin              float64
	COPMax              float64
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.RatedPowerKW <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "rated power must be positive")
	}
	if c.FlowRateM3H <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "flow rate must be positive")
	}
	if c.MinElectricalPowerW < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "minimum electrical power must not be negative")
	}
	if c.COPMin <= 0 || c.COPMax <= c.COPMin {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "COP plausibility bounds are inverted")
	}

	return nil
}

// Engine derives thermal power, COP and integrated energy from aligned
// samples. All methods are pure; a false second return value means "no
// value this tick" and must become a gap downstream, never a zero.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Engine{cfg: cfg}, nil
}

// ThermalPowerFromModulation estimates thermal output in kW as
// rated_power * modulation / 100. ratedKW overrides the configured rated
// power when the device reports one. Modulation outside [0,100] is sensor
// garbage and yields no value.
func (e *Engine) ThermalPowerFromModulation(ratedKW, modulationPct *float64) (float64, bool) {
	if modulationPct == nil {
		return 0, false
	}
	m := *modulationPct
	if m < 0 || m > 100 {
		return 0, false
	}

	rated := e.cfg.RatedPowerKW
	if ratedKW != nil && *ratedKW > 0 {
		rated = *ratedKW
	}

	return rated * m / 100, true
}

// ThermalPowerFromDeltaT estimates thermal output in kW from the
// supply/return spread at the configured flow-rate estimate. A negative
// spread is physically implausible while heating and reads as zero output,
// never negative.
func (e *Engine) ThermalPowerFromDeltaT(supplyC, returnC *float64) (float64, bool) {
	if supplyC == nil || returnC == nil {
		return 0, false
	}

	delta := *supplyC - *returnC
	if delta < 0 {
		return 0, true
	}

	return e.cfg.FlowRateM3H * waterHeatCapacity * delta, true
}

// COP derives the coefficient of performance from one aligned sample. Below
// the minimum electrical power the compressor is considered off and no
// value is emitted; results outside the plausibility band are discarded,
// not clamped.
func (e *Engine) COP(thermalPowerKW, electricalPowerW float64) (float64, bool) {
	if electricalPowerW <= e.cfg.MinElectricalPowerW {
		return 0, false
	}

	cop := thermalPowerKW * 1000 / electricalPowerW
	if cop < e.cfg.COPMin || cop > e.cfg.COPMax {
		return 0, false
	}

	return cop, true
}

// PowerSample is one point of a power series in kW.
type PowerSample struct {
	Timestamp time.Time
	PowerKW   float64
}

// IntegrateEnergy sums a power series into kWh using the actual elapsed
// time between consecutive samples. Each sample is charged for the interval
// since its predecessor, so gaps widen an interval instead of being filled
// with an assumed cadence. Out-of-order samples are skipped.
func IntegrateEnergy(samples []PowerSample) float64 {
	var kwh float64

	for i := 1; i < len(samples); i++ {
		elapsed := samples[i].Timestamp.Sub(samples[i-1].Timestamp).Seconds()
		if elapsed <= 0 {
			continue
		}
		kwh += samples[i].PowerKW * elapsed / 3600
	}

	return kwh
}
