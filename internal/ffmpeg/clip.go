package ffmpeg

import (
	"context"
	"fmt"

	"github.com/kikiluvv/reelcut/pkg/util"
)

// ClipOptions defines clip extraction parameters
type ClipOptions struct {
	Start        float64 // seconds
	End          float64 // seconds
	Output       string
	HasAudio     bool // false = synthesize a silent track
	Encode       EncodeSettings
	ProgressFunc ProgressFunc
}

// ExtractClip cuts [Start, End) from a video and re-encodes it to the
// normalized target so clips from different sources can be crossfaded.
func (e *Executor) ExtractClip(ctx context.Context, input string, opts ClipOptions) error {
	duration := opts.End - opts.Start
	if duration <= 0 {
		return fmt.Errorf("invalid clip duration: end must be after start")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}
	enc := opts.Encode.withDefaults()

	e.logger.Info().
		Str("input", input).
		Str("output", opts.Output).
		Float64("start", opts.Start).
		Float64("duration", duration).
		Msg("extracting clip")

	args := []string{
		"-ss", util.FormatSeconds(opts.Start),
		"-t", util.FormatSeconds(duration),
		"-i", input,
	}
	if !opts.HasAudio {
		args = append(args,
			"-f", "lavfi",
			"-t", util.FormatSeconds(duration),
			"-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", DefaultSampleRate),
		)
	}

	video := NewFilterBuilder().
		Fit(enc.Width, enc.Height).
		SetSAR().
		FPS(float64(enc.FPS)).
		Format(DefaultPixelFormat).
		Build()

	audioInput := "0:a:0"
	if !opts.HasAudio {
		audioInput = "1:a:0"
	}

	args = append(args,
		"-map", "0:v:0",
		"-map", audioInput,
		"-vf", video,
		"-c:v", enc.VideoCodec,
		"-preset", enc.Preset,
		"-crf", fmt.Sprintf("%d", enc.CRF),
		"-r", fmt.Sprintf("%d", enc.FPS),
		"-fps_mode", "cfr",
		"-c:a", enc.AudioCodec,
		"-b:a", enc.AudioBitrate,
		"-ar", fmt.Sprintf("%d", DefaultSampleRate),
		"-ac", "2",
		"-movflags", "+faststart",
		"-shortest",
		opts.Output,
	)

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("clip extraction")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("clip extraction failed: %w", err)
	}

	e.logger.Info().Str("output", opts.Output).Msg("clip extraction complete")
	return nil
}
