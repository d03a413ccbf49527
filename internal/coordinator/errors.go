package coordinator

import "codeberg.org/lumabox/illumctl/internal/errors"

const (
	// Wiring errors
	ErrNilAnalyzer   = errors.ErrorCode("coordinator_nil_analyzer")
	ErrNilController = errors.ErrorCode("coordinator_nil_controller")
	ErrNilGateway    = errors.ErrorCode("coordinator_nil_gateway")
	ErrNoSource      = errors.ErrorCode("coordinator_no_source_for_mode")

	// Lifecycle errors
	ErrLoopHung = errors.ErrorCode("coordinator_loop_hung")
)
