package pipeline

import (
	"context"
	"time"

	"github.com/kikiluvv/reelcut/internal/clips"
	"github.com/kikiluvv/reelcut/internal/dedup"
	"github.com/kikiluvv/reelcut/internal/highlight"
	"github.com/kikiluvv/reelcut/internal/media"
	"github.com/kikiluvv/reelcut/internal/motion"
	"github.com/kikiluvv/reelcut/internal/reel"
	"github.com/kikiluvv/reelcut/internal/scene"
)

// Toolkit is everything the pipeline needs from the media tooling.
// *ffmpeg.Executor implements it.
type Toolkit interface {
	media.MediaTool
	media.ToolRunner
	clips.Encoder
	reel.Renderer
	dedup.FrameReader
	AudioRMS(ctx context.Context, input string, window time.Duration) ([]float64, error)
}

// FrameOpener binds a frame source to a local video file.
type FrameOpener func(path string) motion.FrameSource

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithToolkit replaces the ffmpeg executor.
func WithToolkit(t Toolkit) Option {
	return func(p *Pipeline) { p.tools = t }
}

// WithFrameOpener replaces the ffmpeg grayscale decoder.
func WithFrameOpener(fn FrameOpener) Option {
	return func(p *Pipeline) { p.frames = fn }
}

// WithFetcher replaces the locator router built from config.
func WithFetcher(f media.Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithSelector replaces the configured ranking strategy.
func WithSelector(s highlight.Selector) Option {
	return func(p *Pipeline) { p.selector = s }
}

// Analysis is the outcome of analyzing one local file without encoding.
type Analysis struct {
	Source     *media.SourceVideo
	Scenes     []scene.Scene
	Spikes     []float64
	Candidates []highlight.ScoredSegment
	Selected   []highlight.SelectedSegment
}

// acquired is one download slot result.
type acquired struct {
	src *media.SourceVideo
	err error
}
