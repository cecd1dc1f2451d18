package ffmpeg

import (
	"context"
	"fmt"
)

// Remux rewrites the container without touching the streams.
func (e *Executor) Remux(ctx context.Context, input, output string) error {
	if input == "" || output == "" {
		return fmt.Errorf("input and output paths are required")
	}

	err := e.Run(ctx, RunOptions{
		Args: []string{
			"-i", input,
			"-map", "0:v:0",
			"-map", "0:a:0?",
			"-c", "copy",
			"-movflags", "+faststart",
			output,
		},
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("remuxing")
		},
	})
	if err != nil {
		return fmt.Errorf("remux failed: %w", err)
	}
	return nil
}

// VerifyDecode fully decodes a file and fails on the first decode error.
// This costs roughly one realtime-fraction decode of the whole file.
func (e *Executor) VerifyDecode(ctx context.Context, input string) error {
	err := e.Run(ctx, RunOptions{
		Args: []string{
			"-xerror",
			"-i", input,
			"-f", "null",
			"-",
		},
	})
	if err != nil {
		return fmt.Errorf("decode check failed: %w", err)
	}
	return nil
}
