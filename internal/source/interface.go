package source

import (
	"context"
	"time"
)

// HeatPumpSource is the port for the cloud heat-pump API. One call fetches
// all sensor and configuration fields; field-level absence is a nil pointer
// inside a successful reading, while transport and auth problems are errors
// carrying the source error codes.
type HeatPumpSource interface {
	// ReadSnapshot performs one batched fetch of sensor state, including
	// the configuration-bearing subset used for change detection.
	ReadSnapshot(ctx context.Context, now time.Time) (*HeatPumpReading, error)

	// ReadConfig fetches the full configuration snapshot (setpoints,
	// schedules, modes). Polled on its own slow cadence.
	ReadConfig(ctx context.Context, now time.Time) (*ConfigSnapshot, error)
}

// PowerMeterSource is the port for the local power meter.
type PowerMeterSource interface {
	ReadSnapshot(ctx context.Context, now time.Time) (*PowerReading, error)
}
