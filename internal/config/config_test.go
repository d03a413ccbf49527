package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/lumabox/illumctl/internal/config"
	"codeberg.org/lumabox/illumctl/internal/errors"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "illumctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func loadWithArgs(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()

	oldArgs := os.Args
	os.Args = append([]string{"illumctl"}, args...)
	t.Cleanup(func() { os.Args = oldArgs })

	return config.Load()
}

func TestLoadDefaults(t *testing.T) {
	// Point at a path that does not exist so host config files cannot
	// leak into the test.
	t.Setenv("ILLUMCTL_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := loadWithArgs(t)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.MaxFPS)
	assert.Equal(t, 500*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, "pi", cfg.Controller)
	assert.Equal(t, "intensity", cfg.Analyzer)
	assert.Equal(t, "polling", cfg.Source)
	assert.InDelta(t, 0.05, cfg.Deadzone, 1e-9)
	assert.InDelta(t, 0.0, cfg.MinPower, 1e-9)
	assert.InDelta(t, 50.0, cfg.MaxPower, 1e-9)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Telemetry)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
max_fps = 40
tick_interval_ms = 250
setpoint = 12.5
controller = "manual"
deadzone = 0.1
log_level = "debug"
telemetry = true
database = "telemetry.db"
`)
	t.Setenv("ILLUMCTL_CONFIG", path)

	cfg, err := loadWithArgs(t)
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.MaxFPS)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval())
	assert.InDelta(t, 12.5, cfg.Setpoint, 1e-9)
	assert.Equal(t, "manual", cfg.Controller)
	assert.InDelta(t, 0.1, cfg.Deadzone, 1e-9)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Telemetry)
	assert.Equal(t, "telemetry.db", cfg.TelemetryDB)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfigFile(t, `
max_fps = 40
log_level = "debug"
`)
	t.Setenv("ILLUMCTL_CONFIG", path)

	cfg, err := loadWithArgs(t, "--max-fps", "10", "--setpoint", "7.5")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.MaxFPS)
	assert.InDelta(t, 7.5, cfg.Setpoint, 1e-9)
	// Keys the flags did not touch keep the file values.
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeConfigFile(t, "max_fps = [not toml")
	t.Setenv("ILLUMCTL_CONFIG", path)

	_, err := loadWithArgs(t)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			MaxFPS:         20,
			TickIntervalMs: 500,
			Deadzone:       0.05,
			MinPower:       0,
			MaxPower:       50,
			LogLevel:       "info",
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.MaxFPS = 0
	assert.True(t, errors.HasCode(cfg.Validate(), errors.ErrInvalidMaxFPS))

	cfg = valid()
	cfg.TickIntervalMs = 50
	assert.True(t, errors.HasCode(cfg.Validate(), errors.ErrInvalidTickRate))

	cfg = valid()
	cfg.Deadzone = 1.5
	assert.True(t, errors.HasCode(cfg.Validate(), errors.ErrInvalidDeadzone))

	cfg = valid()
	cfg.MinPower = 60
	assert.True(t, errors.HasCode(cfg.Validate(), errors.ErrInvalidPowerRange))

	cfg = valid()
	cfg.LogLevel = "verbose"
	assert.True(t, errors.HasCode(cfg.Validate(), errors.ErrInvalidLogLevel))

	cfg = valid()
	cfg.Telemetry = true
	assert.True(t, errors.HasCode(cfg.Validate(), errors.ErrMissingConfig))
}
