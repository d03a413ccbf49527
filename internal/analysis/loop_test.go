package analysis_test

import (
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/lumabox/illumctl/internal/analysis"
	"codeberg.org/lumabox/illumctl/internal/errors"
	"codeberg.org/lumabox/illumctl/internal/frame"
)

// fakeAnalyzer records calls and can be made to fail or block per frame.
type fakeAnalyzer struct {
	mu        sync.Mutex
	calls     int
	disposed  int
	failNext  bool
	output    float64
	processed chan struct{}
	blocker   chan struct{}
	events    []string
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{processed: make(chan struct{}, 64)}
}

func (a *fakeAnalyzer) Process(_ []uint16, _, _ int, _ float64, _ int64) error {
	a.mu.Lock()
	a.calls++
	fail := a.failNext
	a.failNext = false
	blocker := a.blocker
	a.events = append(a.events, "process")
	a.mu.Unlock()

	select {
	case a.processed <- struct{}{}:
	default:
	}

	if blocker != nil {
		<-blocker
	}
	if fail {
		return errors.New().New(analysis.ErrProcessFailed)
	}
	return nil
}

func (a *fakeAnalyzer) IntermittentOutput() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.output
}

func (a *fakeAnalyzer) BatchOutput() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.output
}

func (a *fakeAnalyzer) SetROI(_ image.Rectangle) {}

func (a *fakeAnalyzer) Dispose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disposed++
	a.events = append(a.events, "dispose")
}

func (*fakeAnalyzer) ShortDescription() string { return "fake" }

func (a *fakeAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *fakeAnalyzer) disposeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disposed
}

// fakeStore is a push source backed by a map.
type fakeStore struct {
	mu     sync.Mutex
	frames map[frame.Identity]*frame.Frame
}

func newFakeStore() *fakeStore {
	return &fakeStore{frames: make(map[frame.Identity]*frame.Frame)}
}

func (s *fakeStore) Attach(_ func(frame.Identity)) {}
func (s *fakeStore) Detach()                       {}

func (s *fakeStore) FrameByIdentity(id frame.Identity) (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.frames[id]
	if !ok {
		return nil, errors.New().WithData(frame.ErrNoSuchFrame, uint64(id))
	}
	return fr, nil
}

func (s *fakeStore) put(id frame.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[id] = &frame.Frame{Pixels: make([]uint16, 16), Width: 4, Height: 4, PixelSizeUm: 0.1}
}

// fakePoller is a polling source with a settable latest frame.
type fakePoller struct {
	mu sync.Mutex
	id frame.Identity
	ok bool
}

func (p *fakePoller) LatestFrame() (*frame.Frame, frame.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ok {
		return nil, 0, errors.New().New(frame.ErrFrameUnavailable)
	}
	return &frame.Frame{Pixels: make([]uint16, 16), Width: 4, Height: 4}, p.id, nil
}

func (p *fakePoller) set(id frame.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
	p.ok = true
}

type fakeClock struct {
	ms atomic.Int64
}

func (c *fakeClock) now() int64   { return c.ms.Load() }
func (c *fakeClock) set(ms int64) { c.ms.Store(ms) }

func awaitProcessed(t *testing.T, a *fakeAnalyzer) {
	t.Helper()
	select {
	case <-a.processed:
	case <-time.After(time.Second):
		t.Fatal("analyzer was not invoked")
	}
}

func stopAndJoin(t *testing.T, loop *analysis.Loop) {
	t.Helper()
	loop.RequestStop()
	select {
	case <-loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopRejectsBadWiring(t *testing.T) {
	fa := newFakeAnalyzer()

	_, err := analysis.NewLoop(analysis.LoopConfig{})
	assert.True(t, errors.HasCode(err, analysis.ErrNilAnalyzer))

	_, err = analysis.NewLoop(analysis.LoopConfig{Analyzer: fa})
	assert.True(t, errors.HasCode(err, analysis.ErrNoFrameSource))

	_, err = analysis.NewLoop(analysis.LoopConfig{Analyzer: fa, Push: newFakeStore()})
	assert.True(t, errors.HasCode(err, analysis.ErrNoFrameSource))

	_, err = analysis.NewLoop(analysis.LoopConfig{Analyzer: fa, Polling: &fakePoller{}})
	assert.True(t, errors.HasCode(err, errors.ErrInvalidMaxFPS))
}

func TestLoopProcessesPushedFrames(t *testing.T) {
	fa := newFakeAnalyzer()
	store := newFakeStore()
	watcher := frame.NewWatcher()

	loop, err := analysis.NewLoop(analysis.LoopConfig{
		Analyzer: fa,
		Push:     store,
		Watcher:  watcher,
	})
	require.NoError(t, err)
	require.NoError(t, loop.Start())
	assert.Equal(t, analysis.Running, loop.State())

	for i := 1; i <= 3; i++ {
		store.put(frame.Identity(i))
		watcher.Publish(frame.Identity(i))
		awaitProcessed(t, fa)
	}

	require.Eventually(t, func() bool { return loop.FrameCount() == 3 },
		time.Second, time.Millisecond)

	stopAndJoin(t, loop)
	assert.Equal(t, analysis.Stopped, loop.State())
	assert.Equal(t, 1, fa.disposeCount())
}

func TestLoopContinuesAfterAnalyzerFailure(t *testing.T) {
	fa := newFakeAnalyzer()
	store := newFakeStore()
	watcher := frame.NewWatcher()

	loop, err := analysis.NewLoop(analysis.LoopConfig{
		Analyzer: fa,
		Push:     store,
		Watcher:  watcher,
	})
	require.NoError(t, err)
	require.NoError(t, loop.Start())

	store.put(frame.Identity(1))
	watcher.Publish(frame.Identity(1))
	awaitProcessed(t, fa)

	fa.mu.Lock()
	fa.failNext = true
	fa.mu.Unlock()

	store.put(frame.Identity(2))
	watcher.Publish(frame.Identity(2))
	awaitProcessed(t, fa)

	store.put(frame.Identity(3))
	watcher.Publish(frame.Identity(3))
	awaitProcessed(t, fa)

	// One bad frame never stops the pipeline.
	assert.Equal(t, analysis.Running, loop.State())
	assert.Equal(t, 3, fa.callCount())

	stopAndJoin(t, loop)
}

func TestLoopStopFinishesInFlightFrame(t *testing.T) {
	fa := newFakeAnalyzer()
	fa.blocker = make(chan struct{})
	store := newFakeStore()
	watcher := frame.NewWatcher()

	loop, err := analysis.NewLoop(analysis.LoopConfig{
		Analyzer: fa,
		Push:     store,
		Watcher:  watcher,
	})
	require.NoError(t, err)
	require.NoError(t, loop.Start())

	store.put(frame.Identity(1))
	watcher.Publish(frame.Identity(1))
	awaitProcessed(t, fa)

	// Stop arrives mid-analysis; the frame must complete first.
	loop.RequestStop()
	select {
	case <-loop.Done():
		t.Fatal("loop exited while a frame was still being analyzed")
	case <-time.After(50 * time.Millisecond):
	}

	close(fa.blocker)
	select {
	case <-loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after the in-flight frame finished")
	}

	// Dispose runs only after the in-flight Process returned.
	fa.mu.Lock()
	events := append([]string(nil), fa.events...)
	fa.mu.Unlock()
	assert.Equal(t, []string{"process", "dispose"}, events)
}

func TestLoopPollingSkipsStaleFrames(t *testing.T) {
	fa := newFakeAnalyzer()
	poller := &fakePoller{}

	loop, err := analysis.NewLoop(analysis.LoopConfig{
		Analyzer: fa,
		Polling:  poller,
		MaxFPS:   500,
	})
	require.NoError(t, err)
	require.NoError(t, loop.Start())

	poller.set(frame.Identity(1))
	awaitProcessed(t, fa)

	// The same identity must not be re-analyzed.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, fa.callCount())

	poller.set(frame.Identity(2))
	awaitProcessed(t, fa)
	assert.Equal(t, 2, fa.callCount())

	stopAndJoin(t, loop)
}

func TestLoopFPSAccounting(t *testing.T) {
	fa := newFakeAnalyzer()
	store := newFakeStore()
	watcher := frame.NewWatcher()
	clock := &fakeClock{}

	loop, err := analysis.NewLoop(analysis.LoopConfig{
		Analyzer: fa,
		Push:     store,
		Watcher:  watcher,
		Clock:    clock.now,
	})
	require.NoError(t, err)
	require.NoError(t, loop.Start())

	// Drive 25 frames at a simulated 10 fps (100 ms of loop time apart).
	for i := 1; i <= 25; i++ {
		store.put(frame.Identity(i))
		watcher.Publish(frame.Identity(i))
		awaitProcessed(t, fa)
		// Let the iteration finish against the current clock value
		// before advancing simulated time for the next frame.
		time.Sleep(3 * time.Millisecond)
		clock.set(int64(i) * 100)
	}

	// The published FPS approximates the driving rate within the
	// rounding of the one-second aggregation window.
	assert.InDelta(t, 10, loop.FPS(), 2)

	stopAndJoin(t, loop)
}

func TestLoopRejectsReentrantStart(t *testing.T) {
	fa := newFakeAnalyzer()
	store := newFakeStore()
	watcher := frame.NewWatcher()

	loop, err := analysis.NewLoop(analysis.LoopConfig{
		Analyzer: fa,
		Push:     store,
		Watcher:  watcher,
	})
	require.NoError(t, err)
	require.NoError(t, loop.Start())

	err = loop.Start()
	assert.True(t, errors.HasCode(err, analysis.ErrLoopRunning))

	stopAndJoin(t, loop)
}
