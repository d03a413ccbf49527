package control

import "sync"

// PI is a proportional-integral control law. The integral term is clamped to
// the output range so a saturated actuator does not wind it up.
type PI struct {
	mu       sync.Mutex
	kp       float64
	ki       float64
	setpoint float64
	integral float64
	output   float64
	outMin   float64
	outMax   float64
	lastTsMs int64
	primed   bool
}

func NewPI(kp, ki, outMin, outMax float64) *PI {
	return &PI{
		kp:     kp,
		ki:     ki,
		outMin: outMin,
		outMax: outMax,
	}
}

func (c *PI) NextValue(signal float64, timestampMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deviation := c.setpoint - signal

	// Integration uses elapsed loop time; the first sample only primes the
	// timestamp so a long-idle start does not produce a huge step.
	if c.primed {
		dt := float64(timestampMs-c.lastTsMs) / 1000.0
		if dt > 0 {
			c.integral += c.ki * deviation * dt
			c.integral = clamp(c.integral, c.outMin, c.outMax)
		}
	}
	c.lastTsMs = timestampMs
	c.primed = true

	c.output = clamp(c.kp*deviation+c.integral, c.outMin, c.outMax)
}

func (c *PI) CurrentOutput() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.output
}

func (c *PI) SetSetpoint(value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setpoint = value
}

func (c *PI) Setpoint() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.setpoint
}

func (*PI) Name() string {
	return "pi"
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
