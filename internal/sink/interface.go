package sink

import (
	"context"
	"time"

	"github.com/soldalen/heatpumpctl/internal/metrics"
	"github.com/soldalen/heatpumpctl/internal/source"
)

// Status of a monitored service in a HealthEvent.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Service names used in health events.
const (
	ServiceHeatPump   = "heat_pump"
	ServicePowerMeter = "power_meter"
)

// HealthEvent is written on every tick for its source, regardless of
// outcome, so dashboards can show explicit per-source state instead of
// stale values.
type HealthEvent struct {
	Service   string
	Status    Status
	Message   string
	Timestamp time.Time
}

// DerivedMetric is one computed point, tagged with the derivation kind and
// the method family (modulation or delta_t) it came from.
type DerivedMetric struct {
	Timestamp time.Time
	Kind      metrics.Kind
	Method    string
	Value     float64
}

// TimeSeries is the append-only sink for readings, derived metrics and
// health events. Implementations must persist missing fields as gaps and
// never coerce them to zero.
type TimeSeries interface {
	WriteHeatPumpReading(ctx context.Context, reading *source.HeatPumpReading) error
	WritePowerReading(ctx context.Context, reading *source.PowerReading) error
	WriteDerivedMetric(ctx context.Context, metric DerivedMetric) error
	WriteHealthEvent(ctx context.Context, event HealthEvent) error
	Close()
}
