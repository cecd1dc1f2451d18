// Package reel joins the surviving clips of a run into one crossfaded video.
package reel

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/kikiluvv/reelcut/internal/clips"
	"github.com/kikiluvv/reelcut/internal/ffmpeg"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// NoHighlightsError means a run finished without a single usable clip.
type NoHighlightsError struct {
	Subject string
	Sources int
}

func (e *NoHighlightsError) Error() string {
	return fmt.Sprintf("no usable highlights for %q from %d source(s)", e.Subject, e.Sources)
}

// AssemblyError means the final encode failed. No output is left behind.
type AssemblyError struct {
	Output string
	Clips  int
	Err    error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble %d clip(s) into %s: %v", e.Clips, e.Output, e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// Renderer is the subset of the ffmpeg executor used for the final encode.
type Renderer interface {
	Crossfade(ctx context.Context, opts ffmpeg.CrossfadeOptions) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Offsets returns where each transition starts on the output timeline.
// off[0] = max(fade, d[0]-fade) and off[i] = off[i-1] + max(fade, d[i]-fade),
// which stays increasing even for clips shorter than the fade.
func Offsets(durations []float64, fade float64) []float64 {
	if len(durations) < 2 {
		return nil
	}
	offsets := make([]float64, len(durations)-1)
	prev := 0.0
	for i := range offsets {
		prev += math.Max(fade, durations[i]-fade)
		offsets[i] = prev
	}
	return offsets
}

// ExpectedDuration is the reel length implied by Offsets.
func ExpectedDuration(durations []float64, fade float64) float64 {
	if len(durations) == 0 {
		return 0
	}
	offsets := Offsets(durations, fade)
	if len(offsets) == 0 {
		return durations[0]
	}
	return offsets[len(offsets)-1] + durations[len(durations)-1]
}

// Assembler renders the final reel
type Assembler struct {
	logger   zerolog.Logger
	renderer Renderer
	encode   ffmpeg.EncodeSettings
}

// NewAssembler creates an assembler
func NewAssembler(logger zerolog.Logger, renderer Renderer, encode ffmpeg.EncodeSettings) *Assembler {
	return &Assembler{
		logger:   logger.With().Str("component", "assemble").Logger(),
		renderer: renderer,
		encode:   encode,
	}
}

// Assemble joins in into output with crossfade seconds of overlap between
// consecutive clips. Zero clips is a *NoHighlightsError, a failed encode an
// *AssemblyError.
func (a *Assembler) Assemble(ctx context.Context, subject, output string, in []*clips.Clip, crossfade float64) (*clips.HighlightReel, error) {
	if len(in) == 0 {
		return nil, &NoHighlightsError{Subject: subject}
	}
	if crossfade < 0 {
		crossfade = 0
	}

	durations := lo.Map(in, func(c *clips.Clip, _ int) float64 { return c.Duration })
	offsets := Offsets(durations, crossfade)
	expected := ExpectedDuration(durations, crossfade)

	a.logger.Info().
		Str("subject", subject).
		Int("clips", len(in)).
		Float64("crossfade", crossfade).
		Floats64("offsets", offsets).
		Float64("expected", expected).
		Str("output", output).
		Msg("assembling reel")

	fail := func(err error) error {
		if rmErr := os.Remove(output); rmErr != nil && !os.IsNotExist(rmErr) {
			a.logger.Warn().Err(rmErr).Str("output", output).Msg("failed to remove partial reel")
		}
		return &AssemblyError{Output: output, Clips: len(in), Err: err}
	}

	progress := func(p *ffmpeg.Progress) {
		a.logger.Debug().
			Str("time", p.Time).
			Str("speed", p.Speed).
			Int("frame", p.Frame).
			Msg("assembly progress")
	}

	err := a.renderer.Crossfade(ctx, ffmpeg.CrossfadeOptions{
		Inputs:       lo.Map(in, func(c *clips.Clip, _ int) string { return c.Path }),
		Offsets:      offsets,
		Fade:         crossfade,
		Output:       output,
		Encode:       a.encode,
		ProgressFunc: progress,
	})
	if err != nil {
		return nil, fail(err)
	}

	actual, err := a.renderer.ProbeDuration(ctx, output)
	if err != nil {
		return nil, fail(fmt.Errorf("assembled reel is unreadable: %w", err))
	}

	a.logger.Info().
		Str("output", output).
		Float64("duration", actual).
		Float64("expected", expected).
		Msg("reel assembled")

	return &clips.HighlightReel{
		Subject:  subject,
		Path:     output,
		Clips:    in,
		Duration: actual,
		Expected: expected,
	}, nil
}
