package ffmpeg

import (
	"context"
	"fmt"

	"github.com/kikiluvv/reelcut/pkg/util"
)

// CrossfadeOptions defines a multi-input transition render
type CrossfadeOptions struct {
	Inputs []string
	// Offsets[i] is where the transition into Inputs[i+1] starts on the output
	// timeline. len(Offsets) must be len(Inputs)-1.
	Offsets      []float64
	Fade         float64 // seconds; 0 = hard cuts
	Output       string
	Encode       EncodeSettings
	ProgressFunc ProgressFunc
}

// Crossfade joins the inputs into one file, blending video and audio across
// every consecutive pair, and encodes the result once.
func (e *Executor) Crossfade(ctx context.Context, opts CrossfadeOptions) error {
	if len(opts.Inputs) == 0 {
		return fmt.Errorf("no input files provided")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}
	if len(opts.Inputs) > 1 && len(opts.Offsets) != len(opts.Inputs)-1 {
		return fmt.Errorf("expected %d offsets, got %d", len(opts.Inputs)-1, len(opts.Offsets))
	}
	enc := opts.Encode.withDefaults()

	e.logger.Info().
		Int("inputs", len(opts.Inputs)).
		Float64("fade", opts.Fade).
		Str("output", opts.Output).
		Msg("rendering crossfade")

	args := make([]string, 0, len(opts.Inputs)*2+32)
	for _, in := range opts.Inputs {
		args = append(args, "-i", in)
	}

	args = append(args,
		"-filter_complex", crossfadeGraph(len(opts.Inputs), opts.Offsets, opts.Fade, enc),
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:v", enc.VideoCodec,
		"-preset", enc.Preset,
		"-crf", fmt.Sprintf("%d", enc.CRF),
		"-pix_fmt", DefaultPixelFormat,
		"-r", fmt.Sprintf("%d", enc.FPS),
		"-c:a", enc.AudioCodec,
		"-b:a", enc.AudioBitrate,
		"-ar", fmt.Sprintf("%d", DefaultSampleRate),
		"-ac", "2",
		"-movflags", "+faststart",
		opts.Output,
	)

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("crossfading")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("crossfade render failed: %w", err)
	}
	return nil
}

// crossfadeGraph normalizes every input and chains xfade/acrossfade pairs.
// Labels: v0..vN / a0..aN are normalized inputs, vx1.. / ax1.. intermediate joins.
func crossfadeGraph(n int, offsets []float64, fade float64, enc EncodeSettings) string {
	g := &Graph{}

	for i := 0; i < n; i++ {
		g.Chain([]string{fmt.Sprintf("%d:v", i)},
			NewFilterBuilder().
				Fit(enc.Width, enc.Height).
				SetSAR().
				FPS(float64(enc.FPS)).
				Format(DefaultPixelFormat).
				Custom("settb=AVTB").
				Build(),
			fmt.Sprintf("v%d", i))
		g.Chain([]string{fmt.Sprintf("%d:a", i)},
			NewFilterBuilder().
				AudioFormat("fltp", DefaultSampleRate, "stereo").
				Custom("asetpts=PTS-STARTPTS").
				Build(),
			fmt.Sprintf("a%d", i))
	}

	if n == 1 {
		g.Chain([]string{"v0"}, "null", "vout")
		g.Chain([]string{"a0"}, "anull", "aout")
		return g.Build()
	}

	if fade <= 0 {
		inputs := make([]string, 0, n*2)
		for i := 0; i < n; i++ {
			inputs = append(inputs, fmt.Sprintf("v%d", i), fmt.Sprintf("a%d", i))
		}
		g.Chain(inputs, fmt.Sprintf("concat=n=%d:v=1:a=1[vout][aout]", n), "")
		return g.Build()
	}

	prevV, prevA := "v0", "a0"
	for i := 1; i < n; i++ {
		outV, outA := fmt.Sprintf("vx%d", i), fmt.Sprintf("ax%d", i)
		if i == n-1 {
			outV, outA = "vout", "aout"
		}
		g.Chain([]string{prevV, fmt.Sprintf("v%d", i)},
			fmt.Sprintf("xfade=transition=fade:duration=%s:offset=%s",
				util.FormatSeconds(fade), util.FormatSeconds(offsets[i-1])),
			outV)
		g.Chain([]string{prevA, fmt.Sprintf("a%d", i)},
			fmt.Sprintf("acrossfade=d=%s", util.FormatSeconds(fade)),
			outA)
		prevV, prevA = outV, outA
	}

	return g.Build()
}
