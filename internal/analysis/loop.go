package analysis

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/lumabox/illumctl/internal/errors"
	"codeberg.org/lumabox/illumctl/internal/frame"
	"codeberg.org/lumabox/illumctl/internal/logger"
	"codeberg.org/lumabox/illumctl/internal/metrics"
	"codeberg.org/lumabox/illumctl/internal/telemetry"
)

// State is the loop's lifecycle state. Created Stopped, Running after Start,
// StopRequested once a stop is pending, and Stopped again after the goroutine
// has drained and released the analyzer.
type State int32

const (
	Stopped State = iota
	Running
	StopRequested
)

const (
	// pollBackoff is the sleep between polling queries when no fresh frame
	// is available, short enough for sub-frame latency without a busy spin.
	pollBackoff = 2 * time.Millisecond

	// awaitTimeout bounds a single wait on the watcher so the stop flag is
	// re-checked even when the source goes idle.
	awaitTimeout = 100 * time.Millisecond

	fpsWindowMs = 1000
)

// LoopConfig wires a Loop. Exactly one of Polling or Push must be set;
// Watcher is required with Push.
type LoopConfig struct {
	Analyzer Analyzer
	Polling  frame.PollingSource
	Push     frame.PushSource
	Watcher  *frame.Watcher
	MaxFPS   int
	Clock    func() int64
	RunID    string

	Telemetry telemetry.Collector
	Metrics   *metrics.Metrics
}

// Loop drives the analyzer: it repeatedly acquires the latest frame, invokes
// the analyzer, and keeps timing statistics. The analyzer is mutated only by
// the loop's goroutine; external readers use the synchronized accessors.
type Loop struct {
	analyzer Analyzer
	polling  frame.PollingSource
	push     frame.PushSource
	watcher  *frame.Watcher
	maxFPS   int
	clock    func() int64
	runID    string

	collector telemetry.Collector
	metrics   *metrics.Metrics

	// mu guards the analyzer; held only for the duration of a single
	// Process call or output query, never across waits or device I/O.
	mu sync.Mutex

	statsMu        sync.RWMutex
	frameCount     int64
	lastFPS        int
	lastAnalysisMs int64

	state atomic.Int32
	done  chan struct{}
}

func NewLoop(cfg LoopConfig) (*Loop, error) {
	errFactory := errors.New()

	if cfg.Analyzer == nil {
		return nil, errFactory.New(ErrNilAnalyzer)
	}
	if (cfg.Polling == nil) == (cfg.Push == nil) {
		return nil, errFactory.WithMessage(ErrNoFrameSource, "exactly one frame source variant required")
	}
	if cfg.Push != nil && cfg.Watcher == nil {
		return nil, errFactory.WithMessage(ErrNoFrameSource, "push source requires a watcher")
	}
	if cfg.Polling != nil && cfg.MaxFPS <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidMaxFPS, cfg.MaxFPS)
	}

	clock := cfg.Clock
	if clock == nil {
		start := time.Now()
		clock = func() int64 { return time.Since(start).Milliseconds() }
	}

	return &Loop{
		analyzer:  cfg.Analyzer,
		polling:   cfg.Polling,
		push:      cfg.Push,
		watcher:   cfg.Watcher,
		maxFPS:    cfg.MaxFPS,
		clock:     clock,
		runID:     cfg.RunID,
		collector: cfg.Telemetry,
		metrics:   cfg.Metrics,
	}, nil
}

// Start spawns the loop goroutine. Re-entrant starts are rejected.
func (l *Loop) Start() error {
	errFactory := errors.New()

	if !l.state.CompareAndSwap(int32(Stopped), int32(Running)) {
		return errFactory.New(ErrLoopRunning)
	}

	l.done = make(chan struct{})
	go l.run()

	return nil
}

// RequestStop asks the loop to stop after finishing any in-flight frame.
func (l *Loop) RequestStop() {
	l.state.CompareAndSwap(int32(Running), int32(StopRequested))
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) stopRequested() bool {
	return State(l.state.Load()) != Running
}

func (l *Loop) run() {
	defer close(l.done)
	defer l.state.Store(int32(Stopped))
	// Analyzer resources are released deterministically, even when the last
	// Process call failed.
	defer func() {
		l.mu.Lock()
		l.analyzer.Dispose()
		l.mu.Unlock()
	}()

	fpsWindowStart := l.clock()
	fpsCount := 0
	var lastID frame.Identity
	haveLast := false

	var minFrameMs int64
	if l.polling != nil {
		minFrameMs = int64(fpsWindowMs / l.maxFPS)
	}

	for !l.stopRequested() {
		fr, id, ok := l.nextFrame(lastID, haveLast)
		if !ok {
			continue
		}
		lastID, haveLast = id, true

		acquired := l.clock()
		err := l.process(fr, acquired)
		completed := l.clock()

		if err != nil {
			logger.Error().Err(err).Msg("Frame analysis failed, skipping frame")
			if l.metrics != nil {
				l.metrics.AnalysisErrors.Add(1)
			}
		} else if l.metrics != nil {
			l.metrics.FramesAnalyzed.Add(1)
		}

		l.statsMu.Lock()
		l.frameCount++
		l.lastAnalysisMs = completed - acquired
		fpsCount++
		if completed-fpsWindowStart > fpsWindowMs {
			l.lastFPS = fpsCount
			fpsCount = 0
			fpsWindowStart = completed
			if l.metrics != nil {
				l.metrics.LastFPS.Store(uint64(l.lastFPS))
			}
		}
		frameIndex := l.frameCount
		fps := l.lastFPS
		analysisMs := l.lastAnalysisMs
		l.statsMu.Unlock()

		if l.metrics != nil {
			l.metrics.LastAnalysisMs.Store(uint64(analysisMs))
		}

		l.recordFrame(frameIndex, acquired, analysisMs, fps)

		// FPS limiter for polling sources: resample no faster than the
		// configured rate.
		if minFrameMs > 0 {
			if elapsed := l.clock() - acquired; elapsed < minFrameMs {
				time.Sleep(time.Duration(minFrameMs-elapsed) * time.Millisecond)
			}
		}
	}
}

// nextFrame obtains the next fresh frame, or returns false when the caller
// should re-check the stop flag and try again.
func (l *Loop) nextFrame(lastID frame.Identity, haveLast bool) (*frame.Frame, frame.Identity, bool) {
	if l.push != nil {
		id, ok := l.watcher.AwaitNext(awaitTimeout)
		if !ok {
			return nil, 0, false
		}

		if l.metrics != nil {
			l.metrics.FramesDropped.Store(l.watcher.Drops())
		}

		fr, err := l.push.FrameByIdentity(id)
		if err != nil {
			// The frame was overwritten before we fetched it; the next
			// publish supersedes it anyway.
			logger.Debug().Err(err).Msg("Frame fetch by identity failed")
			return nil, 0, false
		}

		return fr, id, true
	}

	fr, id, err := l.polling.LatestFrame()
	if err != nil {
		time.Sleep(pollBackoff)
		return nil, 0, false
	}
	if haveLast && id.Equal(lastID) {
		time.Sleep(pollBackoff)
		return nil, 0, false
	}

	return fr, id, true
}

func (l *Loop) process(fr *frame.Frame, timestampMs int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.analyzer.Process(fr.Pixels, fr.Width, fr.Height, fr.PixelSizeUm, timestampMs)
}

func (l *Loop) recordFrame(frameIndex, timestampMs, analysisMs int64, fps int) {
	if l.collector == nil {
		return
	}

	rec := &telemetry.FrameRecord{
		RunID:        l.runID,
		FrameIndex:   frameIndex,
		TimestampMs:  timestampMs,
		Intermittent: l.IntermittentOutput(),
		AnalysisMs:   analysisMs,
		FPS:          fps,
	}
	if err := l.collector.RecordFrame(context.Background(), rec); err != nil {
		logger.Debug().Err(err).Msg("Frame telemetry record failed")
	}
}

// IntermittentOutput queries the analyzer's per-frame reading under the
// analyzer lock. Safe to call from any goroutine.
func (l *Loop) IntermittentOutput() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.analyzer.IntermittentOutput()
}

// BatchOutput queries the analyzer's windowed reading under the analyzer
// lock. Called once per control tick; may mutate analyzer aggregation state.
func (l *Loop) BatchOutput() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.analyzer.BatchOutput()
}

// SetROI forwards a region of interest to the analyzer.
func (l *Loop) SetROI(roi image.Rectangle) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.analyzer.SetROI(roi)
}

// Description names the analyzer's output for display.
func (l *Loop) Description() string {
	return l.analyzer.ShortDescription()
}

// FPS returns the number of frames analyzed during the last full one-second
// window of loop time.
func (l *Loop) FPS() int {
	l.statsMu.RLock()
	defer l.statsMu.RUnlock()

	return l.lastFPS
}

// LastAnalysisMs returns the duration of the most recent analysis call.
func (l *Loop) LastAnalysisMs() int64 {
	l.statsMu.RLock()
	defer l.statsMu.RUnlock()

	return l.lastAnalysisMs
}

// FrameCount returns the number of frames handled since Start.
func (l *Loop) FrameCount() int64 {
	l.statsMu.RLock()
	defer l.statsMu.RUnlock()

	return l.frameCount
}
