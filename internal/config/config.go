package config

import (
	"os"
	"time"

	"codeberg.org/lumabox/illumctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	// MinTickInterval bounds actuator chatter from the control loop.
	MinTickInterval = 100 * time.Millisecond

	defaultMaxFPS         = 20
	defaultTickIntervalMs = 500
	defaultDeadzone       = 0.05
	defaultMinPower       = 0.0
	defaultMaxPower       = 50.0
	defaultFrameInterval  = 50
)

type Config struct {
	// Analysis pacing
	MaxFPS int `mapstructure:"max_fps"`

	// Control loop
	TickIntervalMs int     `mapstructure:"tick_interval_ms"`
	Setpoint       float64 `mapstructure:"setpoint"`
	Controller     string  `mapstructure:"controller"`
	KP             float64 `mapstructure:"kp"`
	KI             float64 `mapstructure:"ki"`

	// Actuator
	Deadzone float64 `mapstructure:"deadzone"`
	MinPower float64 `mapstructure:"min_power"`
	MaxPower float64 `mapstructure:"max_power"`

	// Acquisition
	Analyzer        string `mapstructure:"analyzer"`
	Source          string `mapstructure:"source"`
	FrameIntervalMs int    `mapstructure:"frame_interval_ms"`

	// Ambient
	LogLevel      string `mapstructure:"log_level"`
	Telemetry     bool   `mapstructure:"telemetry"`
	TelemetryDB   string `mapstructure:"database"`
	MetricsListen string `mapstructure:"metrics_listen"`
}

func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	setDefaults(v)

	flags := pflag.NewFlagSet("illumctl", pflag.ContinueOnError)
	flags.Int("max-fps", defaultMaxFPS, "Maximum analyzed frames per second")
	flags.Int("tick-interval-ms", defaultTickIntervalMs, "Control loop tick interval in milliseconds")
	flags.Float64("setpoint", 0, "Controller setpoint")
	flags.String("controller", "pi", "Controller implementation (pi, manual)")
	flags.Float64("deadzone", defaultDeadzone, "Relative actuator deadzone (0-1)")
	flags.Float64("min-power", defaultMinPower, "Minimum actuator power")
	flags.Float64("max-power", defaultMaxPower, "Maximum actuator power")
	flags.String("analyzer", "intensity", "Analyzer implementation")
	flags.String("source", "polling", "Frame source variant (polling, push)")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.Bool("telemetry", false, "Enable telemetry collection")
	flags.String("database", "", "Path to the telemetry database")
	flags.String("metrics-listen", "", "Prometheus metrics listen address (empty disables)")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	bindFlag(v, flags, "max-fps", "max_fps")
	bindFlag(v, flags, "tick-interval-ms", "tick_interval_ms")
	bindFlag(v, flags, "setpoint", "setpoint")
	bindFlag(v, flags, "controller", "controller")
	bindFlag(v, flags, "deadzone", "deadzone")
	bindFlag(v, flags, "min-power", "min_power")
	bindFlag(v, flags, "max-power", "max_power")
	bindFlag(v, flags, "analyzer", "analyzer")
	bindFlag(v, flags, "source", "source")
	bindFlag(v, flags, "log-level", "log_level")
	bindFlag(v, flags, "telemetry", "telemetry")
	bindFlag(v, flags, "database", "database")
	bindFlag(v, flags, "metrics-listen", "metrics_listen")

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// bindFlag maps a command-line flag onto a config key, overriding file values
// only when the flag was set explicitly.
func bindFlag(v *viper.Viper, flags *pflag.FlagSet, flagName, key string) {
	if f := flags.Lookup(flagName); f != nil && f.Changed {
		v.Set(key, f.Value.String())
	}
}

func readConfigFile(v *viper.Viper) error {
	errFactory := errors.New()

	if path := os.Getenv("ILLUMCTL_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("illumctl")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}

		return errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file").WithData(err.Error())
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_fps", defaultMaxFPS)
	v.SetDefault("tick_interval_ms", defaultTickIntervalMs)
	v.SetDefault("setpoint", 0.0)
	v.SetDefault("controller", "pi")
	v.SetDefault("kp", 1.0)
	v.SetDefault("ki", 0.1)
	v.SetDefault("deadzone", defaultDeadzone)
	v.SetDefault("min_power", defaultMinPower)
	v.SetDefault("max_power", defaultMaxPower)
	v.SetDefault("analyzer", "intensity")
	v.SetDefault("source", "polling")
	v.SetDefault("frame_interval_ms", defaultFrameInterval)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("telemetry", false)
	v.SetDefault("database", "")
	v.SetDefault("metrics_listen", "")
}

// Validate rejects configurations that must never reach a running loop.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.MaxFPS <= 0 {
		return errFactory.WithData(errors.ErrInvalidMaxFPS, c.MaxFPS)
	}
	if time.Duration(c.TickIntervalMs)*time.Millisecond < MinTickInterval {
		return errFactory.WithData(errors.ErrInvalidTickRate, c.TickIntervalMs)
	}
	if c.Deadzone < 0 || c.Deadzone > 1 {
		return errFactory.WithData(errors.ErrInvalidDeadzone, c.Deadzone)
	}
	if c.MinPower > c.MaxPower {
		return errFactory.WithData(errors.ErrInvalidPowerRange, []float64{c.MinPower, c.MaxPower})
	}
	if !isValidLogLevel(c.LogLevel) {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Telemetry && c.TelemetryDB == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "telemetry enabled without database path")
	}

	return nil
}

// TickInterval returns the control loop tick interval as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// FrameInterval returns the simulated camera frame interval as a duration.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warning", "error":
		return true
	default:
		return false
	}
}
