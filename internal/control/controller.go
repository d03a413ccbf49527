package control

// Controller is a pluggable control law mapping the analyzer signal to an
// actuator setpoint. NextValue and CurrentOutput are deliberately separate:
// the current output can be queried for display without re-triggering a
// computation. Implementations own their internal state and must be safe for
// NextValue from the control loop concurrently with CurrentOutput and
// SetSetpoint from other goroutines.
type Controller interface {
	// NextValue feeds one signal sample into the control law.
	NextValue(signal float64, timestampMs int64)

	// CurrentOutput returns the most recently computed setpoint.
	CurrentOutput() float64

	// SetSetpoint changes the target the controller steers towards.
	SetSetpoint(value float64)

	// Setpoint returns the current target.
	Setpoint() float64

	Name() string
}
