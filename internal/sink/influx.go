package sink

import (
	"context"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/soldalen/heatpumpctl/internal/errors"
	"github.com/soldalen/heatpumpctl/internal/source"
)

// InfluxConfig holds the connection settings for the time-series sink.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func (c InfluxConfig) Validate() error {
	errFactory := errors.New()

	if c.URL == "" || c.Org == "" || c.Bucket == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "influx url, org and bucket are required")
	}

	return nil
}

type influxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInflux creates the InfluxDB-backed time-series sink using the
// blocking write API, so a returned nil means the point is durable.
func NewInflux(cfg InfluxConfig) (TimeSeries, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	return &influxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

func (s *influxSink) WriteHeatPumpReading(ctx context.Context, reading *source.HeatPumpReading) error {
	points := make([]*write.Point, 0, 1+len(reading.Circuits))

	p := influxdb2.NewPointWithMeasurement("heat_pump").SetTime(reading.Timestamp)
	addOptField(p, "outside_temp", reading.OutsideTemperature)
	addOptField(p, "return_temp", reading.ReturnTemperature)
	addOptField(p, "dhw_storage_temp", reading.DHWStorageTemperature)
	addOptField(p, "compressor_modulation", reading.CompressorModulation)
	addOptField(p, "compressor_power_rated", reading.RatedPowerKW)
	addOptField(p, "compressor_runtime", reading.CompressorRuntimeHours)
	p.AddField("dhw_pump_active", boolToInt(reading.CirculationPumpActive))
	points = append(points, p)

	for _, circuit := range reading.Circuits {
		cp := influxdb2.NewPointWithMeasurement("heating_circuit").
			SetTime(reading.Timestamp).
			AddTag("circuit_id", strconv.Itoa(circuit.CircuitID))
		addOptField(cp, "supply_temp", circuit.SupplyTemperature)
		if circuit.PumpStatus != nil {
			cp.AddField("pump_status", *circuit.PumpStatus)
		}
		points = append(points, cp)
	}

	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return errors.New().Wrap(ErrWrite, err)
	}

	return nil
}

func (s *influxSink) WritePowerReading(ctx context.Context, reading *source.PowerReading) error {
	p := influxdb2.NewPointWithMeasurement("power_meter").
		SetTime(reading.Timestamp).
		AddField("power_watts", reading.PowerWatts)
	addOptField(p, "voltage", reading.Voltage)
	addOptField(p, "current", reading.Current)
	addOptField(p, "total_energy_wh", reading.TotalEnergyWh)

	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return errors.New().Wrap(ErrWrite, err)
	}

	return nil
}

func (s *influxSink) WriteDerivedMetric(ctx context.Context, metric DerivedMetric) error {
	p := influxdb2.NewPointWithMeasurement("derived_metrics").
		SetTime(metric.Timestamp).
		AddTag("kind", string(metric.Kind)).
		AddTag("method", metric.Method).
		AddField("value", metric.Value)

	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return errors.New().Wrap(ErrWrite, err)
	}

	return nil
}

func (s *influxSink) WriteHealthEvent(ctx context.Context, event HealthEvent) error {
	p := influxdb2.NewPointWithMeasurement("system_status").
		SetTime(event.Timestamp).
		AddTag("service", event.Service).
		AddField("status", string(event.Status)).
		AddField("online", boolToInt(event.Status == StatusOK)).
		AddField("message", event.Message)

	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return errors.New().Wrap(ErrWrite, err)
	}

	return nil
}

func (s *influxSink) Close() {
	s.client.Close()
}

// addOptField adds the field only when present: a nil stays a gap in the
// series, never a zero.
func addOptField(p *write.Point, name string, value *float64) {
	if value != nil {
		p.AddField(name, *value)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
