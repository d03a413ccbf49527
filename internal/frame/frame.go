package frame

// Frame is one camera image plus acquisition metadata. A frame is owned by
// the analysis loop only for the duration of a single analysis call and is
// never retained past it.
type Frame struct {
	Pixels      []uint16
	Width       int
	Height      int
	PixelSizeUm float64
	TimestampMs int64
}

// Identity is an opaque comparison key for frames, used to detect whether a
// newly queried frame differs from the previously analyzed one.
type Identity uint64

// Equal reports whether two identities refer to the same frame.
func (id Identity) Equal(other Identity) bool {
	return id == other
}

// PollingSource is a frame source that is queried synchronously for the
// newest available frame.
type PollingSource interface {
	// LatestFrame returns the newest frame together with its identity.
	// Transient unavailability is reported with ErrFrameUnavailable; the
	// caller retries after a short backoff.
	LatestFrame() (*Frame, Identity, error)
}

// PushSource is a frame source that notifies a listener whenever a new frame
// becomes available. The actual pixel buffer is fetched by identity from the
// source's frame store.
type PushSource interface {
	Attach(notify func(Identity))
	Detach()
	FrameByIdentity(id Identity) (*Frame, error)
}
