package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/lumabox/illumctl/internal/analysis"
	"codeberg.org/lumabox/illumctl/internal/config"
	"codeberg.org/lumabox/illumctl/internal/control"
	"codeberg.org/lumabox/illumctl/internal/coordinator"
	"codeberg.org/lumabox/illumctl/internal/errors"
	"codeberg.org/lumabox/illumctl/internal/frame"
	"codeberg.org/lumabox/illumctl/internal/laser"
	"codeberg.org/lumabox/illumctl/internal/logger"
	"codeberg.org/lumabox/illumctl/internal/metrics"
	"codeberg.org/lumabox/illumctl/internal/pidfile"
	"codeberg.org/lumabox/illumctl/internal/telemetry"
)

const (
	cameraWidth       = 512
	cameraHeight      = 512
	cameraPixelSizeUm = 0.1

	statusInterval = 2 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Msg("Config loaded")

	if err := pidfile.Write(); err != nil {
		logger.Fatal().Err(err).Msg("Another instance appears to be running")
	}
	defer pidfile.Remove()

	if err := run(cfg); err != nil {
		logger.Error().Err(err).Msg("illumctl failed")
		pidfile.Remove()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	m := metrics.New()
	if cfg.MetricsListen != "" {
		m.Serve(cfg.MetricsListen)
		logger.Info().Str("addr", cfg.MetricsListen).Msg("Metrics endpoint enabled")
	}

	collector, err := telemetry.NewService(telemetry.Config{
		DBPath:  cfg.TelemetryDB,
		Enabled: cfg.Telemetry,
	})
	if err != nil {
		return err
	}
	defer collector.Close()

	camera := frame.NewSimulatedCamera(cameraWidth, cameraHeight, cameraPixelSizeUm, cfg.FrameInterval())
	if err := camera.Start(); err != nil {
		return err
	}
	defer camera.Stop()

	device := laser.NewSimulatedDevice(camera)
	gateway, err := laser.NewGateway(device, laser.Config{
		Deadzone: cfg.Deadzone,
		MinPower: cfg.MinPower,
		MaxPower: cfg.MaxPower,
		Metrics:  m,
	})
	if err != nil {
		return err
	}

	analyzer, err := buildAnalyzer(cfg)
	if err != nil {
		return err
	}

	controller, err := buildController(cfg)
	if err != nil {
		return err
	}
	controller.SetSetpoint(cfg.Setpoint)

	coord, err := coordinator.New(coordinator.Deps{
		Analyzer:   analyzer,
		Controller: controller,
		Polling:    camera,
		Push:       camera,
		Gateway:    gateway,
		Telemetry:  collector,
		Metrics:    m,
	}, coordinator.Config{
		MaxFPS:       cfg.MaxFPS,
		TickInterval: cfg.TickInterval(),
	})
	if err != nil {
		return err
	}

	mode, err := parseMode(cfg.Source)
	if err != nil {
		return err
	}

	if err := coord.Start(mode); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigs:
			logger.Info().Msg("Received termination signal.")
			return coord.Stop()
		case <-ticker.C:
			if !coord.Healthy() {
				_ = coord.Stop()
				return errors.New().WithMessage(errors.ErrInternal, "pipeline loop died unexpectedly")
			}
			logStatus(coord.Status())
		}
	}
}

func buildAnalyzer(cfg *config.Config) (analysis.Analyzer, error) {
	switch cfg.Analyzer {
	case "intensity":
		return analysis.NewMeanIntensity(), nil
	default:
		return nil, errors.New().WithData(errors.ErrInvalidConfig, cfg.Analyzer)
	}
}

func buildController(cfg *config.Config) (control.Controller, error) {
	switch cfg.Controller {
	case "pi":
		return control.NewPI(cfg.KP, cfg.KI, cfg.MinPower, cfg.MaxPower), nil
	case "manual":
		return control.NewManual(cfg.Setpoint), nil
	default:
		return nil, errors.New().WithData(errors.ErrInvalidConfig, cfg.Controller)
	}
}

func parseMode(source string) (coordinator.Mode, error) {
	switch source {
	case "polling":
		return coordinator.ModePolling, nil
	case "push":
		return coordinator.ModePush, nil
	default:
		return 0, errors.New().WithData(errors.ErrInvalidConfig, source)
	}
}

func logStatus(st coordinator.Status) {
	logger.Info().
		Int("fps", st.FPS).
		Int64("frames", st.FrameCount).
		Int64("analysis_ms", st.LastAnalysisMs).
		Float64("setpoint", st.Setpoint).
		Float64("output", st.LastOutput).
		Float64("power", st.PowerCached).
		Uint64("dropped", st.WatcherDrops).
		Msg("")
}
