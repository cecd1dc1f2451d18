package ffmpeg

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// rmsSampleRate is the PCM rate used for loudness analysis. Energy spikes
// survive heavy downsampling, so a low rate keeps the pipe cheap.
const rmsSampleRate = 8000

// AudioRMS decodes the first audio stream to mono PCM and returns the RMS
// energy of consecutive windows. Element i covers [i*window, (i+1)*window).
// Values are normalized to 0..1.
func (e *Executor) AudioRMS(ctx context.Context, input string, window time.Duration) ([]float64, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}

	e.logger.Debug().
		Str("input", input).
		Dur("window", window).
		Msg("computing audio rms")

	perWindow := int(window.Seconds() * rmsSampleRate)
	if perWindow < 1 {
		perWindow = 1
	}

	var out []float64
	err := e.Stream(ctx, []string{
		"-i", input,
		"-vn",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", rmsSampleRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1",
	}, func(r io.Reader) error {
		var err error
		out, err = windowRMS(bufio.NewReader(r), perWindow)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("audio analysis failed: %w", err)
	}

	return out, nil
}

// windowRMS reads little-endian signed 16-bit samples and folds them into
// per-window RMS values. A trailing partial window is kept.
func windowRMS(r io.Reader, perWindow int) ([]float64, error) {
	var (
		out    []float64
		sumSq  float64
		count  int
		sample [2]byte
	)

	for {
		if _, err := io.ReadFull(r, sample[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("failed to read pcm: %w", err)
		}
		v := float64(int16(binary.LittleEndian.Uint16(sample[:]))) / 32768.0
		sumSq += v * v
		count++
		if count == perWindow {
			out = append(out, math.Sqrt(sumSq/float64(count)))
			sumSq, count = 0, 0
		}
	}
	if count > 0 {
		out = append(out, math.Sqrt(sumSq/float64(count)))
	}

	return out, nil
}
