package frame

import "codeberg.org/lumabox/illumctl/internal/errors"

const (
	// Acquisition errors
	ErrFrameUnavailable = errors.ErrorCode("frame_unavailable")
	ErrNoSuchFrame      = errors.ErrorCode("frame_not_in_store")
	ErrSourceClosed     = errors.ErrorCode("frame_source_closed")
)
