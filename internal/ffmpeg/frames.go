package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"iter"

	"github.com/kikiluvv/reelcut/internal/motion"
	"github.com/kikiluvv/reelcut/pkg/util"
)

// errStopped signals that the consumer abandoned a stream early.
var errStopped = errors.New("stream consumer stopped")

// GrayOptions configures low resolution grayscale decoding for analysis.
type GrayOptions struct {
	FPS    float64
	Width  int
	Height int
}

// GrayFrames decodes one video into small grayscale rasters. It implements
// motion.FrameSource.
type GrayFrames struct {
	exec *Executor
	path string
	opts GrayOptions
}

// GrayFrames binds a frame source to a video file.
func (e *Executor) GrayFrames(path string, opts GrayOptions) *GrayFrames {
	if opts.FPS <= 0 {
		opts.FPS = 4
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 160, 90
	}
	return &GrayFrames{exec: e, path: path, opts: opts}
}

// Frames decodes [start, end) at the configured sample rate. Frame k carries
// timestamp start + k/fps.
func (g *GrayFrames) Frames(ctx context.Context, start, end float64) iter.Seq2[motion.Frame, error] {
	return func(yield func(motion.Frame, error) bool) {
		if end <= start {
			return
		}

		filter := NewFilterBuilder().
			FPS(g.opts.FPS).
			Scale(g.opts.Width, g.opts.Height).
			Format("gray").
			Build()

		args := []string{
			"-ss", util.FormatSeconds(start),
			"-i", g.path,
			"-t", util.FormatSeconds(end - start),
			"-an",
			"-vf", filter,
			"-f", "rawvideo",
			"-pix_fmt", "gray",
			"pipe:1",
		}

		frameSize := g.opts.Width * g.opts.Height
		stopped := false

		err := g.exec.Stream(ctx, args, func(r io.Reader) error {
			reader := bufio.NewReaderSize(r, frameSize*4)
			for k := 0; ; k++ {
				pix := make([]byte, frameSize)
				if _, err := io.ReadFull(reader, pix); err != nil {
					if err == io.EOF || err == io.ErrUnexpectedEOF {
						return nil
					}
					return fmt.Errorf("failed to read frame: %w", err)
				}
				frame := motion.Frame{
					Time:   start + float64(k)/g.opts.FPS,
					Width:  g.opts.Width,
					Height: g.opts.Height,
					Pix:    pix,
				}
				if !yield(frame, nil) {
					stopped = true
					return errStopped
				}
			}
		})

		if err != nil && !stopped {
			yield(motion.Frame{}, fmt.Errorf("frame decoding failed: %w", err))
		}
	}
}

// FirstFrame decodes the first decodable frame of a video as an image.
func (e *Executor) FirstFrame(ctx context.Context, path string) (image.Image, error) {
	var buf bytes.Buffer
	err := e.Stream(ctx, []string{
		"-i", path,
		"-an",
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	}, func(r io.Reader) error {
		_, err := io.Copy(&buf, r)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("frame extraction failed: %w", err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("no decodable frame in %s", path)
	}

	img, _, err := image.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}
