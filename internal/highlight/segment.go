// Package highlight scores scenes, extends them over trailing action and
// picks the non-overlapping best per source.
package highlight

import (
	"fmt"

	"github.com/kikiluvv/reelcut/internal/media"
)

// Weights combine the raw scores into one composite.
type Weights struct {
	Motion  float64 `yaml:"motion"`
	Density float64 `yaml:"density"`
	Audio   float64 `yaml:"audio"`
}

func DefaultWeights() Weights {
	return Weights{Motion: 0.7, Density: 0.5, Audio: 0.5}
}

// Composite returns the weighted sum of the scores.
func (w Weights) Composite(motion, density float64, spike bool) float64 {
	score := w.Motion*motion + w.Density*density
	if spike {
		score += w.Audio
	}
	return score
}

// ScoredSegment is a candidate highlight after extension and padding.
// Fields are not modified after scoring.
type ScoredSegment struct {
	Source    *media.SourceVideo
	SceneIdx  int
	Start     float64
	End       float64
	Motion    float64
	Density   float64
	Spike     bool
	Composite float64
}

// Duration returns End - Start.
func (s ScoredSegment) Duration() float64 { return s.End - s.Start }

// Overlaps reports whether two half-open intervals share any time.
func (s ScoredSegment) Overlaps(o ScoredSegment) bool {
	return s.Start < o.End && o.Start < s.End
}

func (s ScoredSegment) String() string {
	return fmt.Sprintf("[%.2f, %.2f) score=%.3f", s.Start, s.End, s.Composite)
}

// SelectedSegment is a ScoredSegment accepted by a Selector.
type SelectedSegment struct {
	ScoredSegment
	Rank     int  // 0 = best
	Fallback bool // synthesized because nothing qualified
}
