package control

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/lumabox/illumctl/internal/errors"
	"codeberg.org/lumabox/illumctl/internal/logger"
	"codeberg.org/lumabox/illumctl/internal/metrics"
	"codeberg.org/lumabox/illumctl/internal/telemetry"
)

// MinTickInterval bounds actuator chatter; shorter intervals are rejected.
const MinTickInterval = 100 * time.Millisecond

// SignalSource yields the analyzer's batch reading for one control tick.
type SignalSource interface {
	BatchOutput() float64
}

// Actuator applies a setpoint and reports the value actually applied.
type Actuator interface {
	SetPower(desired float64) (float64, error)
}

// State mirrors the analysis loop's lifecycle states.
type State int32

const (
	Stopped State = iota
	Running
	StopRequested
)

// LoopConfig wires a Loop.
type LoopConfig struct {
	Controller Controller
	Signal     SignalSource
	Actuator   Actuator
	Interval   time.Duration
	Clock      func() int64
	RunID      string

	Telemetry telemetry.Collector
	Metrics   *metrics.Metrics
}

// Loop runs the controller on a fixed tick. Each tick reads the batch signal,
// advances the control law, and forwards the new setpoint to the actuator.
// A failing tick logs and leaves the previous setpoint in force.
type Loop struct {
	controller Controller
	signal     SignalSource
	actuator   Actuator
	clock      func() int64
	runID      string

	collector telemetry.Collector
	metrics   *metrics.Metrics

	mu          sync.RWMutex
	interval    time.Duration
	lastOutput  float64
	lastApplied float64

	state  atomic.Int32
	stop   chan struct{}
	retick chan time.Duration
	done   chan struct{}
}

func NewLoop(cfg LoopConfig) (*Loop, error) {
	errFactory := errors.New()

	if cfg.Controller == nil {
		return nil, errFactory.New(ErrNilController)
	}
	if cfg.Signal == nil {
		return nil, errFactory.New(ErrNilSignal)
	}
	if cfg.Actuator == nil {
		return nil, errFactory.New(ErrNilActuator)
	}
	if cfg.Interval < MinTickInterval {
		return nil, errFactory.WithData(errors.ErrInvalidTickRate, cfg.Interval.String())
	}

	clock := cfg.Clock
	if clock == nil {
		start := time.Now()
		clock = func() int64 { return time.Since(start).Milliseconds() }
	}

	return &Loop{
		controller: cfg.Controller,
		signal:     cfg.Signal,
		actuator:   cfg.Actuator,
		clock:      clock,
		runID:      cfg.RunID,
		collector:  cfg.Telemetry,
		metrics:    cfg.Metrics,
		interval:   cfg.Interval,
		retick:     make(chan time.Duration, 1),
	}, nil
}

// Start spawns the loop goroutine. Re-entrant starts are rejected.
func (l *Loop) Start() error {
	errFactory := errors.New()

	if !l.state.CompareAndSwap(int32(Stopped), int32(Running)) {
		return errFactory.New(ErrLoopRunning)
	}

	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run()

	return nil
}

// RequestStop asks the loop to stop after the tick in progress.
func (l *Loop) RequestStop() {
	if l.state.CompareAndSwap(int32(Running), int32(StopRequested)) {
		close(l.stop)
	}
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

// SetTickInterval changes the tick interval of a running loop. Intervals
// below the minimum are rejected.
func (l *Loop) SetTickInterval(interval time.Duration) error {
	errFactory := errors.New()

	if interval < MinTickInterval {
		return errFactory.WithData(errors.ErrInvalidTickRate, interval.String())
	}

	l.mu.Lock()
	l.interval = interval
	l.mu.Unlock()

	if State(l.state.Load()) == Running {
		select {
		case l.retick <- interval:
		default:
		}
	}

	return nil
}

// LastOutput returns the most recent controller output forwarded to the
// actuator.
func (l *Loop) LastOutput() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.lastOutput
}

// LastApplied returns the power the actuator actually applied on the most
// recent successful tick.
func (l *Loop) LastApplied() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.lastApplied
}

func (l *Loop) run() {
	defer close(l.done)
	defer l.state.Store(int32(Stopped))

	l.mu.RLock()
	interval := l.interval
	l.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case d := <-l.retick:
			ticker.Reset(d)
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) tick() {
	// The batch accessor holds the analyzer lock only for the read; the
	// analysis loop is never blocked across a tick.
	signal := l.signal.BatchOutput()
	now := l.clock()

	l.controller.NextValue(signal, now)
	output := l.controller.CurrentOutput()

	applied, err := l.actuator.SetPower(output)
	if err != nil {
		// Fail safe: previous setpoint remains in force.
		logger.Error().Err(err).Float64("setpoint", output).Msg("Actuator write failed, retaining previous power")
		if l.metrics != nil {
			l.metrics.ControlErrors.Add(1)
		}
		return
	}

	l.mu.Lock()
	l.lastOutput = output
	l.lastApplied = applied
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.ControlTicks.Add(1)
		l.metrics.SetAppliedPower(applied)
	}

	l.recordTick(now, signal, output, applied)
}

func (l *Loop) recordTick(timestampMs int64, signal, output, applied float64) {
	if l.collector == nil {
		return
	}

	rec := &telemetry.TickRecord{
		RunID:        l.runID,
		TimestampMs:  timestampMs,
		Signal:       signal,
		Setpoint:     l.controller.Setpoint(),
		Output:       output,
		AppliedPower: applied,
	}
	if err := l.collector.RecordTick(context.Background(), rec); err != nil {
		logger.Debug().Err(err).Msg("Tick telemetry record failed")
	}
}
