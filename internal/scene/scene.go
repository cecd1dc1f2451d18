// Package scene splits a video into contiguous content scenes on sampled
// grayscale frames. A scene closes on a hard cut between two frames or once
// the picture has drifted far enough from the frame that opened the scene.
package scene

import (
	"context"
	"fmt"
	"iter"

	"github.com/kikiluvv/reelcut/internal/motion"
	"github.com/rs/zerolog"
)

// Scene is a half-open interval [Start, End) in seconds.
type Scene struct {
	Index int
	Start float64
	End   float64
}

// Duration returns End - Start.
func (s Scene) Duration() float64 { return s.End - s.Start }

// Config configures scene segmentation
type Config struct {
	// Mean luma difference (0-255) from the scene's opening frame that
	// closes a scene. Motion that keeps returning to the same picture never
	// builds up drift, so sustained action stays in one scene.
	Threshold float64
	// A single frame change at or above this is a hard cut.
	CutThreshold float64
	// Minimum scene length in seconds before a boundary may be emitted.
	MinSceneLen float64
	MaxScenes   int
}

func DefaultConfig() Config {
	return Config{
		Threshold:    60,
		CutThreshold: 40,
		MinSceneLen:  3.0,
		MaxScenes:    50,
	}
}

// Segmenter detects scene boundaries
type Segmenter struct {
	logger zerolog.Logger
	config Config
}

// NewSegmenter creates a segmenter
func NewSegmenter(logger zerolog.Logger, cfg Config) *Segmenter {
	if cfg.MaxScenes <= 0 {
		cfg.MaxScenes = DefaultConfig().MaxScenes
	}
	return &Segmenter{
		logger: logger.With().Str("component", "scene").Logger(),
		config: cfg,
	}
}

// Segment yields the scenes of a video of the given duration in time order.
// Scenes are contiguous and, unless the scene cap is hit, the last one ends
// at duration. The sequence decodes on iteration and is not restartable.
func (s *Segmenter) Segment(ctx context.Context, frames motion.FrameSource, duration float64) iter.Seq2[Scene, error] {
	return func(yield func(Scene, error) bool) {
		if duration <= 0 {
			return
		}

		var (
			prev     motion.Frame
			key      motion.Frame
			havePrev bool
			start    float64
			emitted  int
		)

		emit := func(end float64) bool {
			sc := Scene{Index: emitted, Start: start, End: end}
			emitted++
			start = end
			return yield(sc, nil)
		}

		for frame, err := range frames.Frames(ctx, 0, duration) {
			if err != nil {
				yield(Scene{}, fmt.Errorf("scene detection failed: %w", err))
				return
			}
			if !havePrev {
				prev, key, havePrev = frame, frame, true
				continue
			}

			change := motion.Diff(prev, frame, 0).Magnitude
			prev = frame

			if frame.Time-start < s.config.MinSceneLen || frame.Time >= duration {
				continue
			}
			if change < s.config.CutThreshold && motion.Diff(key, frame, 0).Magnitude < s.config.Threshold {
				continue
			}

			key = frame
			if !emit(frame.Time) {
				return
			}
			if emitted == s.config.MaxScenes {
				s.logger.Warn().
					Int("max_scenes", s.config.MaxScenes).
					Float64("dropped_from", start).
					Float64("duration", duration).
					Msg("scene cap reached, dropping remainder")
				return
			}
		}

		if err := ctx.Err(); err != nil {
			yield(Scene{}, err)
			return
		}
		if start < duration {
			emit(duration)
		}
	}
}

// Collect drains a scene sequence into a slice.
func Collect(seq iter.Seq2[Scene, error]) ([]Scene, error) {
	var out []Scene
	for sc, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, sc)
	}
	return out, nil
}
