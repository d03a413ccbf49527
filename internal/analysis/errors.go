package analysis

import "codeberg.org/lumabox/illumctl/internal/errors"

const (
	// Per-frame analysis errors
	ErrProcessFailed  = errors.ErrorCode("analysis_process_failed")
	ErrMalformedFrame = errors.ErrorCode("analysis_malformed_frame")

	// Loop lifecycle errors
	ErrLoopRunning   = errors.ErrorCode("analysis_loop_already_running")
	ErrNoFrameSource = errors.ErrorCode("analysis_no_frame_source")
	ErrNilAnalyzer   = errors.ErrorCode("analysis_nil_analyzer")
)
