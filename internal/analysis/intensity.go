package analysis

import (
	"image"

	"codeberg.org/lumabox/illumctl/internal/errors"
)

// MeanIntensity reports the mean pixel value of each frame. The intermittent
// output is the mean of the most recent frame; the batch output averages the
// per-frame means accumulated since it was last queried, then resets the
// window.
type MeanIntensity struct {
	roi      image.Rectangle
	last     float64
	batchSum float64
	batchN   int
	disposed bool
}

func NewMeanIntensity() *MeanIntensity {
	return &MeanIntensity{}
}

func (a *MeanIntensity) Process(pixels []uint16, width, height int, _ float64, _ int64) error {
	errFactory := errors.New()

	if width <= 0 || height <= 0 || len(pixels) < width*height {
		return errFactory.WithData(ErrMalformedFrame, []int{len(pixels), width, height})
	}

	region := image.Rect(0, 0, width, height)
	if !a.roi.Empty() {
		region = region.Intersect(a.roi)
		if region.Empty() {
			return errFactory.WithMessage(ErrMalformedFrame, "ROI outside frame bounds")
		}
	}

	var sum uint64
	for y := region.Min.Y; y < region.Max.Y; y++ {
		row := pixels[y*width : (y+1)*width]
		for x := region.Min.X; x < region.Max.X; x++ {
			sum += uint64(row[x])
		}
	}

	count := region.Dx() * region.Dy()
	a.last = float64(sum) / float64(count)
	a.batchSum += a.last
	a.batchN++

	return nil
}

func (a *MeanIntensity) IntermittentOutput() float64 {
	return a.last
}

func (a *MeanIntensity) BatchOutput() float64 {
	if a.batchN == 0 {
		// Source idle since the last tick: repeat the last known value.
		return a.last
	}

	out := a.batchSum / float64(a.batchN)
	a.batchSum = 0
	a.batchN = 0

	return out
}

func (a *MeanIntensity) SetROI(roi image.Rectangle) {
	a.roi = roi
}

func (a *MeanIntensity) Dispose() {
	a.disposed = true
}

func (a *MeanIntensity) ShortDescription() string {
	return "mean intensity (counts)"
}
