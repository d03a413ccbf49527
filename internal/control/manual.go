package control

import "sync"

// Manual passes the user setpoint straight through as the actuator output.
// The analyzer signal is ignored; the operator is the control law.
type Manual struct {
	mu       sync.Mutex
	setpoint float64
}

func NewManual(setpoint float64) *Manual {
	return &Manual{setpoint: setpoint}
}

func (c *Manual) NextValue(_ float64, _ int64) {}

func (c *Manual) CurrentOutput() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.setpoint
}

func (c *Manual) SetSetpoint(value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setpoint = value
}

func (c *Manual) Setpoint() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.setpoint
}

func (*Manual) Name() string {
	return "manual"
}
