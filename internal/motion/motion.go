// Package motion holds the pixel math shared by scene segmentation and
// highlight scoring: decoded grayscale frames and inter-frame differences.
package motion

import (
	"context"
	"iter"
)

// Frame is one decoded grayscale raster sampled from a video.
type Frame struct {
	Time   float64 // seconds from the start of the video
	Width  int
	Height int
	Pix    []byte // Width*Height luma samples, row-major
}

// FrameSource yields sampled frames covering [start, end) of one video.
// Each call re-decodes; the returned sequence is single-use.
type FrameSource interface {
	Frames(ctx context.Context, start, end float64) iter.Seq2[Frame, error]
}

// Delta describes how much changed between two consecutive frames.
type Delta struct {
	Magnitude float64 // mean absolute luma difference, 0-255
	Density   float64 // fraction of pixels whose difference exceeds the pixel threshold
}

// Diff compares two frames of identical geometry. Frames with mismatched
// sizes compare as unchanged.
func Diff(prev, cur Frame, pixelThreshold int) Delta {
	n := len(cur.Pix)
	if n == 0 || len(prev.Pix) != n {
		return Delta{}
	}

	var sum, moving int
	for i := 0; i < n; i++ {
		d := int(cur.Pix[i]) - int(prev.Pix[i])
		if d < 0 {
			d = -d
		}
		sum += d
		if d > pixelThreshold {
			moving++
		}
	}

	return Delta{
		Magnitude: float64(sum) / float64(n),
		Density:   float64(moving) / float64(n),
	}
}

// Accumulator averages deltas over an interval.
type Accumulator struct {
	magnitude float64
	density   float64
	count     int
}

// Add records one delta.
func (a *Accumulator) Add(d Delta) {
	a.magnitude += d.Magnitude
	a.density += d.Density
	a.count++
}

// Count reports how many deltas were recorded.
func (a *Accumulator) Count() int { return a.count }

// Mean returns the averaged delta, or zero when nothing was recorded.
func (a *Accumulator) Mean() Delta {
	if a.count == 0 {
		return Delta{}
	}
	return Delta{
		Magnitude: a.magnitude / float64(a.count),
		Density:   a.density / float64(a.count),
	}
}
