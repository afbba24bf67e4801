package sink

import (
	"context"

	"github.com/soldalen/heatpumpctl/internal/source"
)

// Noop discards every write. Used when no time-series backend is
// configured, so the collector can still run for shadow-state tracking.
type Noop struct{}

func (Noop) WriteHeatPumpReading(context.Context, *source.HeatPumpReading) error { return nil }
func (Noop) WritePowerReading(context.Context, *source.PowerReading) error       { return nil }
func (Noop) WriteDerivedMetric(context.Context, DerivedMetric) error             { return nil }
func (Noop) WriteHealthEvent(context.Context, HealthEvent) error                 { return nil }
func (Noop) Close()                                                              {}
