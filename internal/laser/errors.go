package laser

import "codeberg.org/lumabox/illumctl/internal/errors"

const (
	// Device communication errors
	ErrDeviceWrite = errors.ErrorCode("laser_device_write_failed")
	ErrDeviceRead  = errors.ErrorCode("laser_device_read_failed")

	// Gateway construction errors
	ErrNilDevice = errors.ErrorCode("laser_nil_device")
)
