package clips

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kikiluvv/reelcut/internal/ffmpeg"
	"github.com/kikiluvv/reelcut/internal/highlight"
	"github.com/kikiluvv/reelcut/internal/media"
	"github.com/rs/zerolog"
)

// MaterializeError reports a segment that could not be encoded. It only
// costs the run that one segment.
type MaterializeError struct {
	Source string
	Start  float64
	End    float64
	Err    error
}

func (e *MaterializeError) Error() string {
	return fmt.Sprintf("materialize %s [%.2f, %.2f): %v", e.Source, e.Start, e.End, e.Err)
}

func (e *MaterializeError) Unwrap() error { return e.Err }

// Encoder is the subset of the ffmpeg executor used to cut clips.
type Encoder interface {
	ExtractClip(ctx context.Context, input string, opts ffmpeg.ClipOptions) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Stager hands out registered staging paths.
type Stager interface {
	NewFile(prefix, ext string) (string, error)
	Release(path string) error
}

// Materializer cuts selected segments into normalized clips
type Materializer struct {
	logger  zerolog.Logger
	encoder Encoder
	stage   Stager
	encode  ffmpeg.EncodeSettings
}

// NewMaterializer creates a materializer
func NewMaterializer(logger zerolog.Logger, encoder Encoder, stage Stager, encode ffmpeg.EncodeSettings) *Materializer {
	return &Materializer{
		logger:  logger.With().Str("component", "materialize").Logger(),
		encoder: encoder,
		stage:   stage,
		encode:  encode,
	}
}

// Materialize encodes seg out of src. Failures are *MaterializeError and
// leave no file behind.
func (m *Materializer) Materialize(ctx context.Context, src *media.SourceVideo, seg highlight.SelectedSegment) (*Clip, error) {
	fail := func(err error) error {
		return &MaterializeError{Source: src.Locator, Start: seg.Start, End: seg.End, Err: err}
	}

	if seg.End <= seg.Start {
		return nil, fail(fmt.Errorf("empty segment"))
	}

	out, err := m.stage.NewFile("clip", ".mp4")
	if err != nil {
		return nil, fail(err)
	}

	err = m.encoder.ExtractClip(ctx, src.Path, ffmpeg.ClipOptions{
		Start:    seg.Start,
		End:      seg.End,
		Output:   out,
		HasAudio: src.HasAudio,
		Encode:   m.encode,
	})
	if err != nil {
		m.release(out)
		return nil, fail(err)
	}

	duration, err := m.encoder.ProbeDuration(ctx, out)
	if err != nil {
		m.release(out)
		return nil, fail(fmt.Errorf("encoded clip is unreadable: %w", err))
	}
	if duration <= 0 {
		m.release(out)
		return nil, fail(fmt.Errorf("encoded clip is empty"))
	}

	clip := &Clip{
		ID:       uuid.NewString(),
		Path:     out,
		Source:   src,
		Segment:  seg,
		Duration: duration,
	}

	m.logger.Info().
		Str("clip", clip.ID).
		Str("source", src.Locator).
		Float64("start", seg.Start).
		Float64("end", seg.End).
		Float64("duration", duration).
		Bool("fallback", seg.Fallback).
		Msg("clip materialized")

	return clip, nil
}

func (m *Materializer) release(path string) {
	if err := m.stage.Release(path); err != nil {
		m.logger.Warn().Err(err).Str("path", path).Msg("failed to release clip")
	}
}
