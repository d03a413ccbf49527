package control

import "codeberg.org/lumabox/illumctl/internal/errors"

const (
	// Tick errors
	ErrControllerFailed = errors.ErrorCode("control_controller_failed")
	ErrActuatorFailed   = errors.ErrorCode("control_actuator_failed")

	// Loop lifecycle errors
	ErrLoopRunning   = errors.ErrorCode("control_loop_already_running")
	ErrNilController = errors.ErrorCode("control_nil_controller")
	ErrNilSignal     = errors.ErrorCode("control_nil_signal_source")
	ErrNilActuator   = errors.ErrorCode("control_nil_actuator")
)
