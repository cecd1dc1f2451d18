package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"iter"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kikiluvv/reelcut/internal/config"
	"github.com/kikiluvv/reelcut/internal/ffmpeg"
	"github.com/kikiluvv/reelcut/internal/motion"
	"github.com/kikiluvv/reelcut/internal/reel"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourceSeconds = 20

// fakeTools stands in for the ffmpeg executor. Every source is a 20s silent
// video; every clip shows the same first frame.
type fakeTools struct {
	mu        sync.Mutex
	durations map[string]float64
	extracted int
	reel      ffmpeg.CrossfadeOptions
}

func newFakeTools() *fakeTools {
	return &fakeTools{durations: make(map[string]float64)}
}

func (f *fakeTools) ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error) {
	return &ffmpeg.VideoInfo{
		FilePath: path,
		Duration: sourceSeconds * time.Second,
		HasVideo: true,
		Width:    320,
		Height:   240,
	}, nil
}

func (f *fakeTools) Remux(ctx context.Context, input, output string) error {
	return errors.New("remux disabled in tests")
}

func (f *fakeTools) VerifyDecode(ctx context.Context, input string) error { return nil }

func (f *fakeTools) Output(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return nil, errors.New("no external tools in tests")
}

func (f *fakeTools) ExtractClip(ctx context.Context, input string, opts ffmpeg.ClipOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracted++
	f.durations[opts.Output] = opts.End - opts.Start
	return os.WriteFile(opts.Output, []byte("clip"), 0644)
}

func (f *fakeTools) ProbeDuration(ctx context.Context, path string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.durations[path]; ok {
		return d, nil
	}
	return 0, errors.New("unknown file")
}

func (f *fakeTools) Crossfade(ctx context.Context, opts ffmpeg.CrossfadeOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reel = opts
	total := 0.0
	for _, in := range opts.Inputs {
		total += f.durations[in]
	}
	f.durations[opts.Output] = total
	return os.WriteFile(opts.Output, []byte("reel"), 0644)
}

func (f *fakeTools) FirstFrame(ctx context.Context, path string) (image.Image, error) {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 16)})
		}
	}
	return img, nil
}

func (f *fakeTools) AudioRMS(ctx context.Context, input string, window time.Duration) ([]float64, error) {
	return nil, nil
}

// staticVideo yields unchanging frames at 4 fps.
type staticVideo struct{}

func (staticVideo) Frames(ctx context.Context, start, end float64) iter.Seq2[motion.Frame, error] {
	return func(yield func(motion.Frame, error) bool) {
		for t := start; t < end; t += 0.25 {
			if !yield(motion.Frame{Time: t, Width: 4, Height: 4, Pix: make([]byte, 16)}, nil) {
				return
			}
		}
	}
}

// fakeFetcher writes a few bytes for good locators, nothing for "empty" and
// fails for "unreachable".
type fakeFetcher struct{}

func (fakeFetcher) Fetch(ctx context.Context, locator, dest string) error {
	switch locator {
	case "unreachable":
		return errors.New("connection refused")
	case "empty":
		return os.WriteFile(dest, nil, 0644)
	}
	return os.WriteFile(dest, []byte("video"), 0644)
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.WorkDir = t.TempDir()
	cfg.OutputDir = t.TempDir()
	cfg.Acquisition.Remux = false
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config, tools *fakeTools) *Pipeline {
	p, err := New(zerolog.Nop(), cfg,
		WithToolkit(tools),
		WithFrameOpener(func(string) motion.FrameSource { return staticVideo{} }),
		WithFetcher(fakeFetcher{}),
	)
	require.NoError(t, err)
	return p
}

func assertWorkDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "run directory and intermediates are removed")
}

func TestGenerateReel(t *testing.T) {
	cfg := testConfig(t)
	tools := newFakeTools()
	p := newTestPipeline(t, cfg, tools)

	hr, err := p.GenerateReel(context.Background(), "Player 7", []string{"a.mp4", "empty", "unreachable", "b.mp4"})
	require.NoError(t, err)

	// both good sources cut one clip; the second is a look-alike of the first
	assert.Equal(t, 2, tools.extracted)
	require.Len(t, hr.Clips, 1)
	assert.Equal(t, "a.mp4", hr.Clips[0].Source.Locator)
	assert.Equal(t, 0, hr.Clips[0].Source.Index)
	assert.InDelta(t, 10.0, hr.Clips[0].Duration, 1e-9)

	assert.FileExists(t, hr.Path)
	assert.Contains(t, hr.Path, "player-7-")
	assert.NotEmpty(t, hr.RunID)
	assert.Len(t, tools.reel.Inputs, 1)
	assert.Empty(t, tools.reel.Offsets)

	assertWorkDirEmpty(t, cfg.WorkDir)
}

func TestGenerateReelNoLocators(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg, newFakeTools())

	_, err := p.GenerateReel(context.Background(), "nobody", nil)

	var nh *reel.NoHighlightsError
	require.ErrorAs(t, err, &nh)
	assert.Equal(t, "nobody", nh.Subject)
	assertWorkDirEmpty(t, cfg.WorkDir)
}

func TestGenerateReelAllSourcesFail(t *testing.T) {
	cfg := testConfig(t)
	tools := newFakeTools()
	p := newTestPipeline(t, cfg, tools)

	_, err := p.GenerateReel(context.Background(), "subject", []string{"empty", "unreachable", "empty"})

	var nh *reel.NoHighlightsError
	require.ErrorAs(t, err, &nh)
	assert.Equal(t, 3, nh.Sources)
	assert.Zero(t, tools.extracted)
	assertWorkDirEmpty(t, cfg.WorkDir)

	outputs, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, outputs, "no reel for a run without clips")
}

func TestGenerateReelCancelledBeforeStart(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg, newFakeTools())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.GenerateReel(ctx, "subject", []string{"a.mp4", "b.mp4"})

	var nh *reel.NoHighlightsError
	assert.ErrorAs(t, err, &nh)
	assertWorkDirEmpty(t, cfg.WorkDir)
}

// cancelAfterClip cancels the run as soon as the first clip is cut.
type cancelAfterClip struct {
	*fakeTools
	cancel context.CancelFunc
}

func (c *cancelAfterClip) ExtractClip(ctx context.Context, input string, opts ffmpeg.ClipOptions) error {
	defer c.cancel()
	return c.fakeTools.ExtractClip(ctx, input, opts)
}

func TestGenerateReelDeadlineMidRun(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tools := &cancelAfterClip{fakeTools: newFakeTools(), cancel: cancel}
	p, err := New(zerolog.Nop(), cfg,
		WithToolkit(tools),
		WithFrameOpener(func(string) motion.FrameSource { return staticVideo{} }),
		WithFetcher(fakeFetcher{}),
	)
	require.NoError(t, err)

	hr, err := p.GenerateReel(ctx, "subject", []string{"a.mp4", "b.mp4", "c.mp4"})
	require.NoError(t, err, "clips cut before the deadline are still assembled")

	assert.Equal(t, 1, tools.extracted)
	require.Len(t, hr.Clips, 1)
	assert.Equal(t, "a.mp4", hr.Clips[0].Source.Locator)
	assert.FileExists(t, hr.Path)
	assert.Len(t, tools.reel.Inputs, 1)
	assertWorkDirEmpty(t, cfg.WorkDir)
}

// countingFetcher counts every download it starts.
type countingFetcher struct {
	fetched atomic.Int32
}

func (f *countingFetcher) Fetch(ctx context.Context, locator, dest string) error {
	f.fetched.Add(1)
	return os.WriteFile(dest, []byte("video"), 0644)
}

func TestGenerateReelBoundsSourcesOnDisk(t *testing.T) {
	cfg := testConfig(t)
	cfg.Acquisition.Workers = 2
	fetcher := &countingFetcher{}

	// fetches seen when each source starts its analysis
	var seen []int32
	p, err := New(zerolog.Nop(), cfg,
		WithToolkit(newFakeTools()),
		WithFrameOpener(func(string) motion.FrameSource {
			seen = append(seen, fetcher.fetched.Load())
			return staticVideo{}
		}),
		WithFetcher(fetcher),
	)
	require.NoError(t, err)

	locators := []string{"a.mp4", "b.mp4", "c.mp4", "d.mp4", "e.mp4", "f.mp4"}
	_, err = p.GenerateReel(context.Background(), "subject", locators)
	require.NoError(t, err)

	require.Len(t, seen, len(locators))
	for i, n := range seen {
		assert.LessOrEqual(t, int(n), i+cfg.Acquisition.Workers,
			"source %d: downloads may only run %d ahead of processing", i, cfg.Acquisition.Workers)
	}
	assert.Equal(t, int32(len(locators)), fetcher.fetched.Load())
}

func TestGenerateReelAssemblyFailure(t *testing.T) {
	cfg := testConfig(t)
	tools := &failingRenderer{fakeTools: newFakeTools()}
	p, err := New(zerolog.Nop(), cfg,
		WithToolkit(tools),
		WithFrameOpener(func(string) motion.FrameSource { return staticVideo{} }),
		WithFetcher(fakeFetcher{}),
	)
	require.NoError(t, err)

	_, err = p.GenerateReel(context.Background(), "subject", []string{"a.mp4"})

	var ae *reel.AssemblyError
	require.ErrorAs(t, err, &ae)
	var nh *reel.NoHighlightsError
	assert.False(t, errors.As(err, &nh))
	assertWorkDirEmpty(t, cfg.WorkDir)
}

type failingRenderer struct {
	*fakeTools
}

func (f *failingRenderer) Crossfade(ctx context.Context, opts ffmpeg.CrossfadeOptions) error {
	return errors.New("encoder exploded")
}

func TestAnalyze(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg, newFakeTools())

	a, err := p.Analyze(context.Background(), "/videos/local.mp4")
	require.NoError(t, err)

	require.Len(t, a.Scenes, 1)
	assert.Equal(t, float64(sourceSeconds), a.Scenes[0].End)
	require.Len(t, a.Selected, 1)
	assert.Equal(t, 0.0, a.Selected[0].Start)
	// the 20s scene is scored as two 10s windows; the padded second one
	// overlaps the first and loses the tie
	require.Len(t, a.Candidates, 2)
	assert.Equal(t, 10.0, a.Selected[0].End)
	assert.Empty(t, a.Spikes, "silent source has no spikes")
}

func TestDeadVideoCheck(t *testing.T) {
	cfg := testConfig(t)
	cfg.Analysis.DeadMotionThreshold = 1
	tools := newFakeTools()
	p := newTestPipeline(t, cfg, tools)

	_, err := p.GenerateReel(context.Background(), "subject", []string{"a.mp4"})

	var nh *reel.NoHighlightsError
	require.ErrorAs(t, err, &nh, "a static source is skipped when the check is on")
	assert.Zero(t, tools.extracted)
}

func TestNewRejectsCustomToolkitWithoutFrames(t *testing.T) {
	_, err := New(zerolog.Nop(), testConfig(t), WithToolkit(newFakeTools()))
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reel.TopKPerSource = 0
	_, err := New(zerolog.Nop(), cfg, WithToolkit(newFakeTools()))
	assert.Error(t, err)
}
