package frame

import (
	"math/rand"
	"sync"
	"time"

	"codeberg.org/lumabox/illumctl/internal/errors"
)

// storeSize is the number of recent frames kept for fetch-by-identity. Push
// consumers that fall further behind than this lose the frame.
const storeSize = 8

// SimulatedCamera produces synthetic frames at a fixed interval. It
// implements both source variants so either acquisition mode can be exercised
// without hardware. The mean intensity of generated frames responds to an
// externally set illumination level, which closes the loop when the simulated
// laser device drives it.
type SimulatedCamera struct {
	width       int
	height      int
	pixelSizeUm float64
	interval    time.Duration

	mu           sync.Mutex
	store        [storeSize]*Frame
	storeIDs     [storeSize]Identity
	latest       Identity
	hasFrame     bool
	illumination float64
	notify       func(Identity)
	running      bool

	stop chan struct{}
	done chan struct{}

	rng   *rand.Rand
	start time.Time
}

func NewSimulatedCamera(width, height int, pixelSizeUm float64, interval time.Duration) *SimulatedCamera {
	return &SimulatedCamera{
		width:       width,
		height:      height,
		pixelSizeUm: pixelSizeUm,
		interval:    interval,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins frame generation.
func (c *SimulatedCamera) Start() error {
	errFactory := errors.New()

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errFactory.New(errors.ErrAlreadyRunning)
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.start = time.Now()
	c.mu.Unlock()

	go c.generate()

	return nil
}

// Stop halts frame generation and waits for the generator to exit.
func (c *SimulatedCamera) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stop := c.stop
	done := c.done
	c.mu.Unlock()

	close(stop)
	<-done
}

// SetIllumination sets the illumination level that frame intensities respond
// to. Called by the simulated laser device on power writes.
func (c *SimulatedCamera) SetIllumination(level float64) {
	c.mu.Lock()
	c.illumination = level
	c.mu.Unlock()
}

// Attach registers the push notification callback.
func (c *SimulatedCamera) Attach(notify func(Identity)) {
	c.mu.Lock()
	c.notify = notify
	c.mu.Unlock()
}

// Detach unregisters the push notification callback.
func (c *SimulatedCamera) Detach() {
	c.mu.Lock()
	c.notify = nil
	c.mu.Unlock()
}

// LatestFrame returns the newest generated frame.
func (c *SimulatedCamera) LatestFrame() (*Frame, Identity, error) {
	errFactory := errors.New()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasFrame {
		return nil, 0, errFactory.New(ErrFrameUnavailable)
	}

	return c.store[int(c.latest)%storeSize], c.latest, nil
}

// FrameByIdentity fetches a frame from the store. Frames older than the
// store window have been overwritten and are reported as missing.
func (c *SimulatedCamera) FrameByIdentity(id Identity) (*Frame, error) {
	errFactory := errors.New()

	c.mu.Lock()
	defer c.mu.Unlock()

	slot := int(id) % storeSize
	if c.store[slot] == nil || c.storeIDs[slot] != id {
		return nil, errFactory.WithData(ErrNoSuchFrame, uint64(id))
	}

	return c.store[slot], nil
}

func (c *SimulatedCamera) generate() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var counter Identity

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			counter++
			c.emit(counter)
		}
	}
}

func (c *SimulatedCamera) emit(id Identity) {
	c.mu.Lock()

	mean := 100.0 + 20.0*c.illumination
	pixels := make([]uint16, c.width*c.height)
	for i := range pixels {
		v := mean + c.rng.NormFloat64()*5.0
		if v < 0 {
			v = 0
		}
		pixels[i] = uint16(v)
	}

	slot := int(id) % storeSize
	c.store[slot] = &Frame{
		Pixels:      pixels,
		Width:       c.width,
		Height:      c.height,
		PixelSizeUm: c.pixelSizeUm,
		TimestampMs: time.Since(c.start).Milliseconds(),
	}
	c.storeIDs[slot] = id
	c.latest = id
	c.hasFrame = true
	notify := c.notify

	c.mu.Unlock()

	// Notification happens outside the store lock so a slow listener never
	// stalls frame generation.
	if notify != nil {
		notify(id)
	}
}
