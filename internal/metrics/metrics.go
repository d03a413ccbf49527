package metrics

import (
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codeberg.org/lumabox/illumctl/internal/logger"
)

// Metrics holds the pipeline's operational counters. Counters are updated
// with atomics from the loops; Prometheus reads them through gauge functions
// so scrapes never contend with the hot path.
type Metrics struct {
	// Analysis loop
	FramesAnalyzed atomic.Uint64
	FramesDropped  atomic.Uint64
	AnalysisErrors atomic.Uint64
	LastFPS        atomic.Uint64
	LastAnalysisMs atomic.Uint64

	// Control loop
	ControlTicks     atomic.Uint64
	ControlErrors    atomic.Uint64
	DeadzoneHolds    atomic.Uint64
	appliedPowerBits atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its Prometheus collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.register()

	return m
}

// SetAppliedPower stores the most recently applied actuator power.
func (m *Metrics) SetAppliedPower(power float64) {
	m.appliedPowerBits.Store(math.Float64bits(power))
}

// AppliedPower returns the most recently applied actuator power.
func (m *Metrics) AppliedPower() float64 {
	return math.Float64frombits(m.appliedPowerBits.Load())
}

func (m *Metrics) register() {
	gauge := func(name, help string, value func() float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help},
			value,
		))
	}

	gauge("illumctl_frames_analyzed_total", "Total frames processed by the analyzer",
		func() float64 { return float64(m.FramesAnalyzed.Load()) })
	gauge("illumctl_frames_dropped_total", "Frames overwritten in the handoff slot before consumption",
		func() float64 { return float64(m.FramesDropped.Load()) })
	gauge("illumctl_analysis_errors_total", "Frames whose analysis failed and was skipped",
		func() float64 { return float64(m.AnalysisErrors.Load()) })
	gauge("illumctl_analysis_fps", "Frames analyzed during the last one-second window",
		func() float64 { return float64(m.LastFPS.Load()) })
	gauge("illumctl_analysis_duration_ms", "Duration of the most recent single-frame analysis",
		func() float64 { return float64(m.LastAnalysisMs.Load()) })
	gauge("illumctl_control_ticks_total", "Total control loop ticks",
		func() float64 { return float64(m.ControlTicks.Load()) })
	gauge("illumctl_control_errors_total", "Control ticks that failed at the controller or actuator",
		func() float64 { return float64(m.ControlErrors.Load()) })
	gauge("illumctl_deadzone_holds_total", "Setpoints suppressed by the actuator deadzone",
		func() float64 { return float64(m.DeadzoneHolds.Load()) })
	gauge("illumctl_applied_power", "Most recently applied actuator power",
		m.AppliedPower)
}

// Serve exposes the metrics endpoint on addr. It returns immediately; the
// server runs until the process exits.
func (m *Metrics) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
}
