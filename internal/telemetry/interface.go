package telemetry

import "context"

// Collector defines the core domain interface
type Collector interface {
	RecordFrame(ctx context.Context, rec *FrameRecord) error
	RecordTick(ctx context.Context, rec *TickRecord) error
	Close() error
}

// FrameRecord is one analyzed frame's worth of telemetry. One row is written
// per processed frame, versioned by the run identifier so successive
// acquisition runs stay distinguishable.
type FrameRecord struct {
	RunID        string
	FrameIndex   int64
	TimestampMs  int64
	Intermittent float64
	AnalysisMs   int64
	FPS          int
}

// TickRecord is one control tick's worth of telemetry.
type TickRecord struct {
	RunID        string
	TimestampMs  int64
	Signal       float64
	Setpoint     float64
	Output       float64
	AppliedPower float64
}
