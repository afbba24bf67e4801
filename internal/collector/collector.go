package collector

import (
	"context"
	"sync"
	"time"

	"github.com/soldalen/heatpumpctl/internal/errors"
	"github.com/soldalen/heatpumpctl/internal/logger"
	"github.com/soldalen/heatpumpctl/internal/metrics"
	"github.com/soldalen/heatpumpctl/internal/ratelimit"
	"github.com/soldalen/heatpumpctl/internal/shadow"
	"github.com/soldalen/heatpumpctl/internal/sink"
	"github.com/soldalen/heatpumpctl/internal/source"
)

const (
	defaultPowerRetryDelay = 2 * time.Second
	defaultStalenessLimit  = 120 * time.Second
	defaultStartupGrace    = 60 * time.Second
)

// Config holds the scheduler cadences and alignment parameters.
type Config struct {
	PowerInterval       time.Duration
	HeatPumpInterval    time.Duration
	ConfigCheckInterval time.Duration

	// AlignWindow is the averaging window for the electrical side of an
	// aligned sample; AlignTolerance bounds the nearest-reading fallback
	// when the window is empty.
	AlignWindow    time.Duration
	AlignTolerance time.Duration

	// PowerRetryDelay is the fixed delay before the single power-meter
	// retry. Zero selects the default.
	PowerRetryDelay time.Duration

	// StalenessLimit is how old the newest buffered power reading may be
	// before the power meter counts as offline; StartupGrace suppresses
	// that verdict right after start.
	StalenessLimit time.Duration
	StartupGrace   time.Duration
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.PowerInterval <= 0 || c.HeatPumpInterval <= 0 || c.ConfigCheckInterval <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "all intervals must be positive")
	}
	if c.AlignWindow <= 0 || c.AlignTolerance <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "alignment window and tolerance must be positive")
	}

	return nil
}

// Collector drives the two polling cadences plus the slow configuration
// check. The loops are independent: a heat-pump call in flight never delays
// power-meter polling, and either source failing never blocks the other.
type Collector struct {
	cfg Config

	heatPump   source.HeatPumpSource
	powerMeter source.PowerMeterSource

	series   sink.TimeSeries
	shadow   *shadow.Store
	governor *ratelimit.Governor
	engine   *metrics.Engine

	buffer *powerBuffer
	start  time.Time

	fatalOnce sync.Once
	fatal     chan error
}

func New(
	cfg Config,
	heatPump source.HeatPumpSource,
	powerMeter source.PowerMeterSource,
	series sink.TimeSeries,
	shadowStore *shadow.Store,
	governor *ratelimit.Governor,
	engine *metrics.Engine,
) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.PowerRetryDelay <= 0 {
		cfg.PowerRetryDelay = defaultPowerRetryDelay
	}
	if cfg.StalenessLimit <= 0 {
		cfg.StalenessLimit = defaultStalenessLimit
	}
	if cfg.StartupGrace <= 0 {
		cfg.StartupGrace = defaultStartupGrace
	}

	return &Collector{
		cfg:        cfg,
		heatPump:   heatPump,
		powerMeter: powerMeter,
		series:     series,
		shadow:     shadowStore,
		governor:   governor,
		engine:     engine,
		buffer:     newPowerBuffer(2 * cfg.AlignWindow),
		fatal:      make(chan error, 1),
	}, nil
}

// Run blocks until the context is cancelled or a fatal persistence
// condition stops the collector. Cancellation is cooperative: it is
// observed between ticks, and an in-flight tick finishes its writes.
func (c *Collector) Run(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.start = time.Now().UTC()

	var wg sync.WaitGroup
	wg.Add(3)
	go c.loop(loopCtx, &wg, c.cfg.PowerInterval, c.powerTick)
	go c.loop(loopCtx, &wg, c.cfg.HeatPumpInterval, c.heatPumpTick)
	go c.loop(loopCtx, &wg, c.cfg.ConfigCheckInterval, c.configTick)

	var runErr error
	select {
	case <-loopCtx.Done():
	case err := <-c.fatal:
		runErr = err
		cancel()
	}

	wg.Wait()

	return runErr
}

// loop runs one tick immediately, then on every ticker fire until the
// context is cancelled.
func (c *Collector) loop(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, tick func(context.Context, time.Time)) {
	defer wg.Done()

	tick(ctx, time.Now().UTC())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			tick(ctx, now.UTC())
		}
	}
}

// powerTick reads the power meter with one bounded retry, buffers the
// reading for alignment and persists it.
func (c *Collector) powerTick(ctx context.Context, now time.Time) {
	reading, err := c.powerMeter.ReadSnapshot(ctx, now)
	if err != nil {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.PowerRetryDelay):
		}
		reading, err = c.powerMeter.ReadSnapshot(ctx, now.Add(c.cfg.PowerRetryDelay))
	}

	if err != nil {
		logger.Warn().Err(err).Msg("Power meter read failed")
		c.writeHealth(ctx, sink.ServicePowerMeter, sink.StatusError, err.Error(), now)
		return
	}

	c.buffer.Add(*reading)

	if err := c.series.WritePowerReading(ctx, reading); err != nil {
		logger.Error().Err(err).Msg("Failed to persist power reading")
		c.writeHealth(ctx, sink.ServicePowerMeter, sink.StatusError, "time-series write failed", now)
		return
	}

	logger.Debug().Float64("watts", reading.PowerWatts).Msg("Power reading collected")
	c.writeHealth(ctx, sink.ServicePowerMeter, sink.StatusOK, "ok", now)
}

// heatPumpTick performs the governed batched fetch, persists the raw
// reading, runs change detection over the configuration-bearing fields and
// derives metrics when an aligned power sample exists. Failures skip the
// tick; there is never an in-tick retry against the rate budget.
func (c *Collector) heatPumpTick(ctx context.Context, now time.Time) {
	acquired, err := c.governor.TryAcquire(ctx, now)
	if err != nil {
		c.reportFatal(err)
		return
	}
	if !acquired {
		logger.Info().Int("calls_in_window", c.governor.CallsInWindow(now)).Msg("Heat pump tick skipped: rate limited")
		c.writeHealth(ctx, sink.ServiceHeatPump, sink.StatusOK, "rate limited, tick skipped", now)
		return
	}

	reading, err := c.heatPump.ReadSnapshot(ctx, now)
	if err != nil {
		if source.IsRateLimited(err) {
			c.governor.SignalUpstreamLimit(now)
			c.writeHealth(ctx, sink.ServiceHeatPump, sink.StatusOK, "upstream rate limited, cooling down", now)
			return
		}
		logger.Warn().Err(err).Msg("Heat pump read failed")
		c.writeHealth(ctx, sink.ServiceHeatPump, sink.StatusError, err.Error(), now)
		return
	}

	writeErr := c.series.WriteHeatPumpReading(ctx, reading)
	if writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to persist heat pump reading")
	}

	if reading.Configuration != nil {
		if _, err := c.shadow.ObserveAll(ctx, reading.Configuration.Features(), now); err != nil {
			c.reportFatal(err)
			return
		}
	}

	c.deriveAndWrite(ctx, reading, now)

	if writeErr != nil {
		c.writeHealth(ctx, sink.ServiceHeatPump, sink.StatusError, "time-series write failed", now)
		return
	}

	msg := "ok"
	if !c.powerMeterOnline(now) {
		msg = "ok, power meter offline"
	}
	c.writeHealth(ctx, sink.ServiceHeatPump, sink.StatusOK, msg, now)
}

// configTick fetches the full configuration snapshot on its slow cadence
// and feeds it through change detection. Shares the governed budget with
// the metrics fetch.
func (c *Collector) configTick(ctx context.Context, now time.Time) {
	acquired, err := c.governor.TryAcquire(ctx, now)
	if err != nil {
		c.reportFatal(err)
		return
	}
	if !acquired {
		logger.Debug().Msg("Config check skipped: rate limited")
		return
	}

	snapshot, err := c.heatPump.ReadConfig(ctx, now)
	if err != nil {
		if source.IsRateLimited(err) {
			c.governor.SignalUpstreamLimit(now)
			return
		}
		logger.Warn().Err(err).Msg("Config fetch failed")
		return
	}

	changed, err := c.shadow.ObserveAll(ctx, snapshot.Features(), now)
	if err != nil {
		c.reportFatal(err)
		return
	}

	if changed > 0 {
		logger.Info().Int("changes", changed).Msg("Configuration changes recorded")
	} else {
		logger.Debug().Msg("No configuration changes detected")
	}
}

// deriveAndWrite computes derived metrics for one heat-pump reading. Every
// guard failure is an omission for this timestamp, never a zero.
func (c *Collector) deriveAndWrite(ctx context.Context, reading *source.HeatPumpReading, now time.Time) {
	thermalMod, okMod := c.engine.ThermalPowerFromModulation(reading.RatedPowerKW, reading.CompressorModulation)
	if okMod {
		c.writeMetric(ctx, sink.DerivedMetric{
			Timestamp: now, Kind: metrics.KindThermalPowerModulation, Method: "modulation", Value: thermalMod,
		})
	}

	thermalDT, okDT := c.engine.ThermalPowerFromDeltaT(c.supplyTemperature(reading), reading.ReturnTemperature)
	if okDT {
		c.writeMetric(ctx, sink.DerivedMetric{
			Timestamp: now, Kind: metrics.KindThermalPowerDeltaT, Method: "delta_t", Value: thermalDT,
		})
	}

	electricalW, okPower := c.alignedPower(now)
	if !okPower {
		logger.Debug().Msg("No aligned power sample, COP omitted")
		return
	}

	if okMod {
		if cop, ok := c.engine.COP(thermalMod, electricalW); ok {
			c.writeMetric(ctx, sink.DerivedMetric{
				Timestamp: now, Kind: metrics.KindCOP, Method: "modulation", Value: cop,
			})
		}
	}
	if okDT {
		if cop, ok := c.engine.COP(thermalDT, electricalW); ok {
			c.writeMetric(ctx, sink.DerivedMetric{
				Timestamp: now, Kind: metrics.KindCOPDeltaT, Method: "delta_t", Value: cop,
			})
		}
	}
}

// alignedPower pairs the heat-pump tick with the electrical side: the
// average over the preceding window, falling back to the nearest reading
// within the tolerance. No fabrication: both empty means no COP point.
func (c *Collector) alignedPower(now time.Time) (float64, bool) {
	if avg, ok := c.buffer.AverageSince(now.Add(-c.cfg.AlignWindow)); ok {
		return avg, true
	}

	return c.buffer.NearestWithin(now, c.cfg.AlignTolerance)
}

// supplyTemperature picks the primary circuit's supply temperature.
func (c *Collector) supplyTemperature(reading *source.HeatPumpReading) *float64 {
	for _, circuit := range reading.Circuits {
		if circuit.SupplyTemperature != nil {
			return circuit.SupplyTemperature
		}
	}

	return nil
}

func (c *Collector) powerMeterOnline(now time.Time) bool {
	last, ok := c.buffer.LastTimestamp()
	if !ok {
		// Right after start an empty buffer is expected, not an outage
		return now.Sub(c.start) < c.cfg.StartupGrace
	}

	return now.Sub(last) < c.cfg.StalenessLimit
}

func (c *Collector) writeMetric(ctx context.Context, metric sink.DerivedMetric) {
	if err := c.series.WriteDerivedMetric(ctx, metric); err != nil {
		logger.Error().Err(err).Str("kind", string(metric.Kind)).Msg("Failed to persist derived metric")
	}
}

func (c *Collector) writeHealth(ctx context.Context, service string, status sink.Status, msg string, now time.Time) {
	event := sink.HealthEvent{Service: service, Status: status, Message: msg, Timestamp: now}
	if err := c.series.WriteHealthEvent(ctx, event); err != nil {
		logger.Error().Err(err).Str("service", service).Msg("Failed to persist health event")
	}
}

// reportFatal surfaces a persistence failure that must stop the run loop.
func (c *Collector) reportFatal(err error) {
	c.fatalOnce.Do(func() {
		c.fatal <- err
	})
}
