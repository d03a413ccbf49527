package analysis

import "image"

// Analyzer turns frames into a scalar signal. Implementations are mutated by
// the analysis loop's goroutine only; all other access goes through the
// loop's synchronized accessors.
type Analyzer interface {
	// Process analyzes one frame. A failure applies to that frame only;
	// the caller logs it and continues with the next frame.
	Process(pixels []uint16, width, height int, pixelSizeUm float64, timestampMs int64) error

	// IntermittentOutput is the cheap per-frame reading used for live
	// display and per-frame telemetry.
	IntermittentOutput() float64

	// BatchOutput is the windowed reading consumed once per control tick.
	// Querying it may mutate internal aggregation state.
	BatchOutput() float64

	// SetROI restricts analysis to a region of interest. An empty
	// rectangle means the full frame.
	SetROI(roi image.Rectangle)

	// Dispose releases analyzer resources. Idempotent.
	Dispose()

	// ShortDescription names the analyzer's output for display.
	ShortDescription() string
}
