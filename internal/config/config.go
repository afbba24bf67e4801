package config

import (
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/soldalen/heatpumpctl/internal/errors"
)

const (
	DefaultLogLevel = "info"

	defaultPowerInterval       = 10    // seconds
	defaultHeatPumpInterval    = 300   // seconds
	defaultConfigCheckInterval = 18000 // seconds

	defaultRatedPowerKW    = 16.0
	defaultFlowRateM3H     = 1.0
	defaultMinElectricalW  = 200.0
	defaultCOPMin          = 0.5
	defaultCOPMax          = 10.0
	defaultAlignWindowSec  = 300
	defaultAlignToleranceS = 300

	defaultRateLimitThreshold   = 1200 // calls per rolling 24h, below the vendor cap
	defaultRateLimitCooldownSec = 900

	defaultDBPath = "/var/lib/heatpumpctl/heatpumpctl.db"
)

// Config holds all collector settings. Durations are plain seconds so the
// TOML file and environment stay unit-free, matching the upstream daemon.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	Simulate bool   `mapstructure:"simulate"`

	PowerInterval       int `mapstructure:"power_interval"`
	HeatPumpInterval    int `mapstructure:"heat_pump_interval"`
	ConfigCheckInterval int `mapstructure:"config_check_interval"`

	RatedPowerKW        float64 `mapstructure:"rated_power_kw"`
	FlowRateM3H         float64 `mapstructure:"flow_rate_m3h"`
	MinElectricalPowerW float64 `mapstructure:"min_electrical_power_w"`
	COPMin              float64 `mapstructure:"cop_min"`
	COPMax              float64 `mapstructure:"cop_max"`

	AlignWindow    int `mapstructure:"align_window"`
	AlignTolerance int `mapstructure:"align_tolerance"`

	RateLimitThreshold int `mapstructure:"rate_limit_threshold"`
	RateLimitCooldown  int `mapstructure:"rate_limit_cooldown"`

	Database string `mapstructure:"database"`

	InfluxURL    string `mapstructure:"influx_url"`
	InfluxToken  string `mapstructure:"influx_token"`
	InfluxOrg    string `mapstructure:"influx_org"`
	InfluxBucket string `mapstructure:"influx_bucket"`

	HeatPumpHost   string `mapstructure:"heat_pump_host"`
	PowerMeterHost string `mapstructure:"power_meter_host"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("simulate", false)
	v.SetDefault("power_interval", defaultPowerInterval)
	v.SetDefault("heat_pump_interval", defaultHeatPumpInterval)
	v.SetDefault("config_check_interval", defaultConfigCheckInterval)
	v.SetDefault("rated_power_kw", defaultRatedPowerKW)
	v.SetDefault("flow_rate_m3h", defaultFlowRateM3H)
	v.SetDefault("min_electrical_power_w", defaultMinElectricalW)
	v.SetDefault("cop_min", defaultCOPMin)
	v.SetDefault("cop_max", defaultCOPMax)
	v.SetDefault("align_window", defaultAlignWindowSec)
	v.SetDefault("align_tolerance", defaultAlignToleranceS)
	v.SetDefault("rate_limit_threshold", defaultRateLimitThreshold)
	v.SetDefault("rate_limit_cooldown", defaultRateLimitCooldownSec)
	v.SetDefault("database", defaultDBPath)
	v.SetDefault("influx_url", "http://localhost:8086")
	v.SetDefault("influx_org", "home")
	v.SetDefault("influx_bucket", "heatpump_raw")
}

// Load reads configuration from flags, environment and an optional TOML
// file. Flag values win over the file, the file wins over defaults.
func Load() (*Config, error) {
	errFactory := errors.New()

	fs := pflag.NewFlagSet("heatpumpctl", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warning, error)")
	simulate := fs.Bool("simulate", false, "Use simulated sensor sources")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HEATPUMPCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	path := *configPath
	if path == "" {
		path = os.Getenv("HEATPUMPCTL_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file").WithData(err.Error())
		}
	} else {
		v.SetConfigName("heatpumpctl")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "log-level":
			v.Set("log_level", *logLevel)
		case "simulate":
			v.Set("simulate", *simulate)
		}
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks invariants that the collector depends on.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.PowerInterval <= 0 || c.HeatPumpInterval <= 0 || c.ConfigCheckInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Power       int
			HeatPump    int
			ConfigCheck int
		}{c.PowerInterval, c.HeatPumpInterval, c.ConfigCheckInterval})
	}

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
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			COPMin float64
			COPMax float64
		}{c.COPMin, c.COPMax})
	}

	if c.AlignWindow <= 0 || c.AlignTolerance <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "alignment window and tolerance must be positive")
	}

	if c.RateLimitThreshold <= 0 || c.RateLimitCooldown <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "rate limit threshold and cooldown must be positive")
	}

	if c.Database == "" {
		return errFactory.New(errors.ErrMissingConfig).WithMessage("database path is required")
	}

	return nil
}
