package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/soldalen/heatpumpctl/internal/collector"
	"github.com/soldalen/heatpumpctl/internal/config"
	"github.com/soldalen/heatpumpctl/internal/logger"
	"github.com/soldalen/heatpumpctl/internal/metrics"
	"github.com/soldalen/heatpumpctl/internal/ratelimit"
	"github.com/soldalen/heatpumpctl/internal/shadow"
	"github.com/soldalen/heatpumpctl/internal/sink"
	"github.com/soldalen/heatpumpctl/internal/source"
	"github.com/soldalen/heatpumpctl/internal/store"
)

var cfg *config.Config

func init() {
	// Local .env first, so credentials never need to live in the TOML file
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(
		cfg.LogLevel == config.LogLevelDebug.String(),
		cfg.LogLevel == config.LogLevelInfo.String(),
		logger.IsService(),
	)
	if cfg.LogLevel == config.LogLevelError.String() {
		logger.SetLogLevel(logger.ErrorLevel)
	}
	logger.Debug().Msg("Config loaded")
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx); err != nil {
		logger.Error().Err(err).Msg("collector stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context) error {
	repo, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close store")
		}
	}()

	series, err := buildTimeSeries()
	if err != nil {
		return err
	}
	defer series.Close()

	heatPump, powerMeter, err := buildSources()
	if err != nil {
		return err
	}

	governor, err := ratelimit.New(repo, ratelimit.Config{
		SafetyThreshold: cfg.RateLimitThreshold,
		Cooldown:        time.Duration(cfg.RateLimitCooldown) * time.Second,
	})
	if err != nil {
		return err
	}

	shadowStore, err := shadow.New(repo)
	if err != nil {
		return err
	}

	engine, err := metrics.NewEngine(metrics.Config{
		RatedPowerKW:        cfg.RatedPowerKW,
		FlowRateM3H:         cfg.FlowRateM3H,
		MinElectricalPowerW: cfg.MinElectricalPowerW,
		COPMin:              cfg.COPMin,
		COPMax:              cfg.COPMax,
	})
	if err != nil {
		return err
	}

	c, err := collector.New(collector.Config{
		PowerInterval:       time.Duration(cfg.PowerInterval) * time.Second,
		HeatPumpInterval:    time.Duration(cfg.HeatPumpInterval) * time.Second,
		ConfigCheckInterval: time.Duration(cfg.ConfigCheckInterval) * time.Second,
		AlignWindow:         time.Duration(cfg.AlignWindow) * time.Second,
		AlignTolerance:      time.Duration(cfg.AlignTolerance) * time.Second,
	}, heatPump, powerMeter, series, shadowStore, governor, engine)
	if err != nil {
		return err
	}

	logger.Info().
		Int("power_interval", cfg.PowerInterval).
		Int("heat_pump_interval", cfg.HeatPumpInterval).
		Bool("simulate", cfg.Simulate).
		Msg("Collector starting")

	return c.Run(ctx)
}

func buildTimeSeries() (sink.TimeSeries, error) {
	if cfg.InfluxToken == "" {
		logger.Warn().Msg("No InfluxDB token configured, readings will not be persisted")
		return sink.Noop{}, nil
	}

	return sink.NewInflux(sink.InfluxConfig{
		URL:    cfg.InfluxURL,
		Token:  cfg.InfluxToken,
		Org:    cfg.InfluxOrg,
		Bucket: cfg.InfluxBucket,
	})
}

func buildSources() (source.HeatPumpSource, source.PowerMeterSource, error) {
	if cfg.Simulate {
		logger.Info().Msg("Using simulated sensor sources")
		return source.NewSimulatedHeatPump(), source.NewSimulatedPowerMeter(), nil
	}

	if cfg.HeatPumpHost == "" || cfg.PowerMeterHost == "" {
		return nil, nil, fmt.Errorf("heat_pump_host and power_meter_host are required unless --simulate is set")
	}

	return source.NewHTTPHeatPump(cfg.HeatPumpHost), source.NewShellyPowerMeter(cfg.PowerMeterHost), nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
