package laser

import (
	"math"
	"sync"

	"codeberg.org/lumabox/illumctl/internal/errors"
	"codeberg.org/lumabox/illumctl/internal/logger"
	"codeberg.org/lumabox/illumctl/internal/metrics"
)

// Config describes the gateway's safety envelope.
type Config struct {
	Deadzone float64
	MinPower float64
	MaxPower float64

	Metrics *metrics.Metrics
}

func (c Config) validate() error {
	errFactory := errors.New()

	if c.Deadzone < 0 || c.Deadzone > 1 {
		return errFactory.WithData(errors.ErrInvalidDeadzone, c.Deadzone)
	}
	if c.MinPower > c.MaxPower {
		return errFactory.WithData(errors.ErrInvalidPowerRange, []float64{c.MinPower, c.MaxPower})
	}

	return nil
}

// Gateway applies setpoints to a laser device with deadzone suppression and
// bounds clamping, and caches the last applied value so display paths never
// block on device I/O.
type Gateway struct {
	device Device
	cfg    Config

	// mu guards the cache only; device I/O happens outside it so cached
	// reads never wait on the device.
	mu     sync.Mutex
	cached float64
}

func NewGateway(device Device, cfg Config) (*Gateway, error) {
	errFactory := errors.New()

	if device == nil {
		return nil, errFactory.New(ErrNilDevice)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Gateway{
		device: device,
		cfg:    cfg,
	}, nil
}

// SetPower applies a desired power and returns the value in force afterwards.
// NaN is treated as "no instruction". A change smaller than the relative
// deadzone keeps the previous value without a device write. Anything else is
// clamped into [MinPower, MaxPower] and written. On a write failure the
// previous value stays cached and in force.
func (g *Gateway) SetPower(desired float64) (float64, error) {
	errFactory := errors.New()

	if math.IsNaN(desired) {
		return g.PowerCached(), nil
	}

	g.mu.Lock()
	cached := g.cached
	g.mu.Unlock()

	// A zero cached power never suppresses a nonzero instruction: the
	// relative change would be undefined, and holding a dark laser dark
	// forever is not what the deadzone is for.
	if cached != 0 && math.Abs(cached-desired)/math.Abs(cached) < g.cfg.Deadzone {
		if g.cfg.Metrics != nil {
			g.cfg.Metrics.DeadzoneHolds.Add(1)
		}
		return cached, nil
	}

	applied := clamp(desired, g.cfg.MinPower, g.cfg.MaxPower)

	logger.Debug().Float64("power", applied).Msg("Setting laser power")

	if err := g.device.WritePower(applied); err != nil {
		return cached, errFactory.Wrap(ErrDeviceWrite, err)
	}

	g.mu.Lock()
	g.cached = applied
	g.mu.Unlock()

	return applied, nil
}

// Power reads the device authoritatively and refreshes the cache.
func (g *Gateway) Power() (float64, error) {
	errFactory := errors.New()

	power, err := g.device.ReadPower()
	if err != nil {
		return g.PowerCached(), errFactory.Wrap(ErrDeviceRead, err)
	}

	g.mu.Lock()
	g.cached = power
	g.mu.Unlock()

	return power, nil
}

// PowerCached returns the last known power without a device round-trip.
func (g *Gateway) PowerCached() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.cached
}

// MinPower returns the lower clamp bound.
func (g *Gateway) MinPower() float64 {
	return g.cfg.MinPower
}

// MaxPower returns the upper clamp bound.
func (g *Gateway) MaxPower() float64 {
	return g.cfg.MaxPower
}

func clamp(value, minValue, maxValue float64) float64 {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}

	return value
}
