package coordinator

import (
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"codeberg.org/lumabox/illumctl/internal/analysis"
	"codeberg.org/lumabox/illumctl/internal/control"
	"codeberg.org/lumabox/illumctl/internal/errors"
	"codeberg.org/lumabox/illumctl/internal/frame"
	"codeberg.org/lumabox/illumctl/internal/laser"
	"codeberg.org/lumabox/illumctl/internal/logger"
	"codeberg.org/lumabox/illumctl/internal/metrics"
	"codeberg.org/lumabox/illumctl/internal/telemetry"
)

// Mode selects which frame source variant feeds the analysis loop.
type Mode int

const (
	ModePolling Mode = iota
	ModePush
)

// joinTimeout is how long Stop waits for each loop to drain before the loop
// is reported as hung.
const joinTimeout = 5 * time.Second

// Deps are the collaborators for one run. The coordinator owns their
// lifecycles but not their construction.
type Deps struct {
	Analyzer   analysis.Analyzer
	Controller control.Controller
	Polling    frame.PollingSource
	Push       frame.PushSource
	Gateway    *laser.Gateway
	Telemetry  telemetry.Collector
	Metrics    *metrics.Metrics
}

// Config is the coordinator's validated runtime configuration.
type Config struct {
	MaxFPS       int
	TickInterval time.Duration
}

// Coordinator wires frame source, analysis loop, control loop and actuator
// together and owns their lifecycles. It is an explicitly constructed value;
// there is no ambient process-wide instance.
type Coordinator struct {
	deps Deps
	cfg  Config

	mu           sync.Mutex
	running      bool
	runID        string
	start        time.Time
	watcher      *frame.Watcher
	analysisLoop *analysis.Loop
	controlLoop  *control.Loop
}

// Status is a display snapshot of the running pipeline.
type Status struct {
	Running        bool
	RunID          string
	FPS            int
	FrameCount     int64
	LastAnalysisMs int64
	Setpoint       float64
	LastOutput     float64
	PowerCached    float64
	WatcherDrops   uint64
	Analyzer       string
}

func New(deps Deps, cfg Config) (*Coordinator, error) {
	errFactory := errors.New()

	if deps.Analyzer == nil {
		return nil, errFactory.New(ErrNilAnalyzer)
	}
	if deps.Controller == nil {
		return nil, errFactory.New(ErrNilController)
	}
	if deps.Gateway == nil {
		return nil, errFactory.New(ErrNilGateway)
	}
	if cfg.MaxFPS <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidMaxFPS, cfg.MaxFPS)
	}
	if cfg.TickInterval < control.MinTickInterval {
		return nil, errFactory.WithData(errors.ErrInvalidTickRate, cfg.TickInterval.String())
	}

	return &Coordinator{
		deps: deps,
		cfg:  cfg,
	}, nil
}

// Start validates the mode's source, wires the loops and spawns them.
// Starting while already running is rejected.
func (c *Coordinator) Start(mode Mode) error {
	errFactory := errors.New()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errFactory.New(errors.ErrAlreadyRunning)
	}

	switch mode {
	case ModePolling:
		if c.deps.Polling == nil {
			return errFactory.WithMessage(ErrNoSource, "polling mode requires a polling source")
		}
	case ModePush:
		if c.deps.Push == nil {
			return errFactory.WithMessage(ErrNoSource, "push mode requires a push source")
		}
	default:
		return errFactory.WithData(errors.ErrInvalidArgument, int(mode))
	}

	c.runID = uuid.NewString()
	c.start = time.Now()
	clock := c.elapsedMs

	loopCfg := analysis.LoopConfig{
		Analyzer:  c.deps.Analyzer,
		Clock:     clock,
		RunID:     c.runID,
		Telemetry: c.deps.Telemetry,
		Metrics:   c.deps.Metrics,
	}

	if mode == ModePush {
		c.watcher = frame.NewWatcher()
		c.deps.Push.Attach(c.watcher.Publish)
		loopCfg.Push = c.deps.Push
		loopCfg.Watcher = c.watcher
	} else {
		c.watcher = nil
		loopCfg.Polling = c.deps.Polling
		loopCfg.MaxFPS = c.cfg.MaxFPS
	}

	analysisLoop, err := analysis.NewLoop(loopCfg)
	if err != nil {
		return err
	}

	controlLoop, err := control.NewLoop(control.LoopConfig{
		Controller: c.deps.Controller,
		Signal:     analysisLoop,
		Actuator:   c.deps.Gateway,
		Interval:   c.cfg.TickInterval,
		Clock:      clock,
		RunID:      c.runID,
		Telemetry:  c.deps.Telemetry,
		Metrics:    c.deps.Metrics,
	})
	if err != nil {
		return err
	}

	if err := analysisLoop.Start(); err != nil {
		return err
	}
	if err := controlLoop.Start(); err != nil {
		analysisLoop.RequestStop()
		<-analysisLoop.Done()
		return err
	}

	c.analysisLoop = analysisLoop
	c.controlLoop = controlLoop
	c.running = true

	logger.Info().
		Str("run_id", c.runID).
		Str("analyzer", c.deps.Analyzer.ShortDescription()).
		Str("controller", c.deps.Controller.Name()).
		Msg("Pipeline started")

	return nil
}

// Stop requests both loops to stop and waits for an orderly drain. A loop
// that fails to exit within the join timeout is reported as hung, never
// silently ignored.
func (c *Coordinator) Stop() error {
	errFactory := errors.New()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return errFactory.New(errors.ErrNotRunning)
	}

	c.controlLoop.RequestStop()
	c.analysisLoop.RequestStop()
	if c.watcher != nil {
		c.watcher.Close()
	}
	if c.deps.Push != nil {
		c.deps.Push.Detach()
	}

	if err := join(c.controlLoop.Done(), "control"); err != nil {
		return err
	}
	if err := join(c.analysisLoop.Done(), "analysis"); err != nil {
		return err
	}

	c.running = false

	logger.Info().Str("run_id", c.runID).Msg("Pipeline stopped")

	return nil
}

func join(done <-chan struct{}, name string) error {
	errFactory := errors.New()

	select {
	case <-done:
		return nil
	case <-time.After(joinTimeout):
		return errFactory.WithData(ErrLoopHung, name)
	}
}

// SetSetpoint forwards a new target to the controller. Safe at any time.
func (c *Coordinator) SetSetpoint(value float64) {
	c.deps.Controller.SetSetpoint(value)
}

// Setpoint returns the controller's current target.
func (c *Coordinator) Setpoint() float64 {
	return c.deps.Controller.Setpoint()
}

// SetROI forwards a region of interest to the analyzer.
func (c *Coordinator) SetROI(roi image.Rectangle) {
	c.mu.Lock()
	running := c.running
	loop := c.analysisLoop
	c.mu.Unlock()

	if running {
		loop.SetROI(roi)
		return
	}

	c.deps.Analyzer.SetROI(roi)
}

// SetTickInterval adjusts the control loop's tick interval.
func (c *Coordinator) SetTickInterval(interval time.Duration) error {
	errFactory := errors.New()

	c.mu.Lock()
	running := c.running
	loop := c.controlLoop
	c.mu.Unlock()

	if running {
		return loop.SetTickInterval(interval)
	}

	if interval < control.MinTickInterval {
		return errFactory.WithData(errors.ErrInvalidTickRate, interval.String())
	}
	c.mu.Lock()
	c.cfg.TickInterval = interval
	c.mu.Unlock()

	return nil
}

// Healthy reports whether both loops are still alive. A loop that died
// without a stop request makes the pipeline unhealthy.
func (c *Coordinator) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return false
	}

	return c.analysisLoop.State() == analysis.Running &&
		c.controlLoop.State() == control.Running
}

// Status returns a display snapshot. Cheap: cached reads only, no device I/O.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Running:     c.running,
		RunID:       c.runID,
		Setpoint:    c.deps.Controller.Setpoint(),
		PowerCached: c.deps.Gateway.PowerCached(),
		Analyzer:    c.deps.Analyzer.ShortDescription(),
	}

	if c.running {
		st.FPS = c.analysisLoop.FPS()
		st.FrameCount = c.analysisLoop.FrameCount()
		st.LastAnalysisMs = c.analysisLoop.LastAnalysisMs()
		st.LastOutput = c.controlLoop.LastOutput()
		if c.watcher != nil {
			st.WatcherDrops = c.watcher.Drops()
		}
	}

	return st
}

// elapsedMs is the loop time source: monotonic milliseconds since Start.
func (c *Coordinator) elapsedMs() int64 {
	return time.Since(c.start).Milliseconds()
}
