package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/kikiluvv/reelcut/internal/clips"
	"github.com/kikiluvv/reelcut/internal/config"
	"github.com/kikiluvv/reelcut/internal/dedup"
	"github.com/kikiluvv/reelcut/internal/ffmpeg"
	"github.com/kikiluvv/reelcut/internal/highlight"
	"github.com/kikiluvv/reelcut/internal/logging"
	"github.com/kikiluvv/reelcut/internal/media"
	"github.com/kikiluvv/reelcut/internal/motion"
	"github.com/kikiluvv/reelcut/internal/reel"
	"github.com/kikiluvv/reelcut/internal/scene"
	"github.com/kikiluvv/reelcut/internal/workspace"
	"github.com/kikiluvv/reelcut/pkg/util"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Pipeline orchestrates acquisition, analysis, cutting and assembly of one reel
type Pipeline struct {
	logger    zerolog.Logger
	config    *config.Config
	tools     Toolkit
	frames    FrameOpener
	fetcher   media.Fetcher
	segmenter *scene.Segmenter
	scorer    *highlight.Scorer
	selector  highlight.Selector
}

// New creates a new pipeline instance
func New(logger zerolog.Logger, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &Pipeline{
		logger: logger.With().Str("component", "pipeline").Logger(),
		config: cfg,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.tools == nil {
		exec, err := ffmpeg.New(logger, cfg.FFmpegOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
		}
		p.tools = exec
	}

	if p.frames == nil {
		exec, ok := p.tools.(*ffmpeg.Executor)
		if !ok {
			return nil, errors.New("a frame opener is required with a custom toolkit")
		}
		gray := cfg.GrayOptions()
		p.frames = func(path string) motion.FrameSource { return exec.GrayFrames(path, gray) }
	}

	if p.fetcher == nil {
		p.fetcher = p.defaultFetcher(logger)
	}

	if p.selector == nil {
		scores := highlight.NewScoreSelector(cfg.SelectorConfig())
		p.selector = scores
		if cfg.Ranking.Strategy == config.StrategyLLM {
			p.selector = highlight.NewLLMSelector(logger, cfg.LLMConfig(), scores)
		}
	}

	p.segmenter = scene.NewSegmenter(logger, cfg.SceneConfig())
	p.scorer = highlight.NewScorer(logger, cfg.ScorerConfig())

	return p, nil
}

func (p *Pipeline) defaultFetcher(logger zerolog.Logger) media.Fetcher {
	acq := p.config.Acquisition
	var remote media.Fetcher = &media.YtDlpFetcher{
		Runner:  p.tools,
		Binary:  acq.YtDlpPath,
		MaxSize: acq.MaxSourceSize,
	}
	if acq.Downloader == config.DownloaderHTTP {
		remote = &media.HTTPFetcher{
			Client:  &http.Client{},
			MaxSize: acq.MaxSourceSize,
			Retries: acq.HTTPRetries,
			Backoff: time.Second,
			Logger:  logger.With().Str("component", "http-fetch").Logger(),
		}
	}
	return &media.Router{Remote: remote, Local: media.FileFetcher{}}
}

// GenerateReel turns locators into one highlight reel written to the output
// directory. Sources that fail are skipped; a run without a single clip
// returns *reel.NoHighlightsError. Every intermediate file is removed before
// it returns.
func (p *Pipeline) GenerateReel(ctx context.Context, subject string, locators []string) (*clips.HighlightReel, error) {
	ws, err := workspace.New(p.config.WorkDir, subject)
	if err != nil {
		return nil, err
	}
	log := logging.WithRun(p.logger, subject, ws.RunID())
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Warn().Err(err).Str("dir", ws.Dir()).Msg("workspace cleanup incomplete")
		}
	}()

	if len(locators) == 0 {
		return nil, &reel.NoHighlightsError{Subject: subject}
	}

	start := time.Now()
	log.Info().Int("sources", len(locators)).Str("work_dir", ws.Dir()).Msg("starting reel generation")

	need := uint64(p.config.Acquisition.MaxSourceSize) * uint64(p.config.Acquisition.Workers)
	if err := ws.EnsureFree(need); err != nil {
		log.Warn().Err(err).Msg("low disk space")
	}

	acq := media.NewAcquirer(log, p.fetcher, p.tools, ws, p.config.MediaConfig())
	mat := clips.NewMaterializer(log, p.tools, ws, p.config.EncodeSettings())
	manager := clips.NewManager()

	slots, next, wait := p.acquireAll(ctx, acq, locators)
	defer wait()

	for i, slot := range slots {
		var res acquired
		select {
		case res = <-slot:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Int("processed", i).Msg("deadline reached, assembling collected clips")
			break
		}

		srcLog := logging.WithSource(log, i, locators[i])
		if res.err != nil {
			srcLog.Warn().Err(res.err).Str("reason", string(media.ReasonOf(res.err))).Msg("skipping source")
			next()
			continue
		}

		srcLog.Info().Msgf("processing video %d/%d", i+1, len(locators))
		made := p.processSource(ctx, srcLog, res.src, mat)
		for _, c := range made {
			manager.Add(c)
		}
		srcLog.Info().Int("clips", len(made)).Msg("source done")

		if err := ws.Release(res.src.Path); err != nil {
			srcLog.Warn().Err(err).Msg("failed to release source")
		}
		next()
	}

	if manager.Len() == 0 {
		return nil, &reel.NoHighlightsError{Subject: subject, Sources: len(locators)}
	}

	// Clips already paid for are assembled even past the caller's deadline.
	actx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if timeout := p.config.Encoding.AssemblyTimeout; timeout > 0 {
		actx, cancel = context.WithTimeout(context.WithoutCancel(ctx), timeout)
	}
	defer cancel()

	kept, dropped := dedup.New(log, p.tools, p.config.Reel.DedupThreshold).Deduplicate(actx, manager.All())
	for _, c := range dropped {
		if err := ws.Release(c.Path); err != nil {
			log.Warn().Err(err).Str("clip", c.ID).Msg("failed to release duplicate")
		}
	}
	manager.Retain(kept)

	if err := util.EnsureDir(p.config.OutputDir); err != nil {
		return nil, &reel.AssemblyError{Output: p.config.OutputDir, Clips: manager.Len(), Err: err}
	}
	output := filepath.Join(p.config.OutputDir, fmt.Sprintf("%s-%s.mp4", util.Slug(subject), ws.RunID()))

	assembler := reel.NewAssembler(log, p.tools, p.config.EncodeSettings())
	hr, err := assembler.Assemble(actx, subject, output, manager.All(), p.config.Reel.Crossfade)
	if err != nil {
		return nil, err
	}
	hr.RunID = ws.RunID()

	log.Info().
		Str("output", hr.Path).
		Int("clips", len(hr.Clips)).
		Float64("duration", hr.Duration).
		Dur("elapsed", time.Since(start)).
		Msg("reel generated")
	return hr, nil
}

// acquireAll downloads on a bounded pool. Slot i receives exactly one result
// for locator i. At most Workers sources are downloading or waiting on disk
// at any time: a new download starts only after the caller has called next
// for a finished slot. wait blocks until every worker has returned.
func (p *Pipeline) acquireAll(ctx context.Context, acq *media.Acquirer, locators []string) (slots []chan acquired, next, wait func()) {
	slots = make([]chan acquired, len(locators))
	for i := range slots {
		slots[i] = make(chan acquired, 1)
	}

	workers := p.config.Acquisition.Workers
	tokens := make(chan struct{}, workers)

	var g errgroup.Group
	g.SetLimit(workers)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, locator := range locators {
			select {
			case tokens <- struct{}{}:
			case <-ctx.Done():
				slots[i] <- acquired{err: ctx.Err()}
				continue
			}
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					slots[i] <- acquired{err: err}
					return nil
				}
				src, err := acq.Acquire(ctx, locator)
				if src != nil {
					src.Index = i
				}
				slots[i] <- acquired{src: src, err: err}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return slots, func() { <-tokens }, func() { <-done }
}

// processSource analyzes one source and cuts its selected segments. Failures
// are logged; whatever was cut before them is kept.
func (p *Pipeline) processSource(ctx context.Context, log zerolog.Logger, src *media.SourceVideo, mat *clips.Materializer) []*clips.Clip {
	if timeout := p.config.Analysis.SourceTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	a, err := p.analyze(ctx, log, src)
	if err != nil {
		log.Warn().Err(err).Msg("analysis failed, skipping source")
		return nil
	}

	var made []*clips.Clip
	for _, seg := range a.Selected {
		clip, err := mat.Materialize(ctx, src, seg)
		if err != nil {
			log.Warn().Err(err).Msg("skipping segment")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		made = append(made, clip)
	}
	return made
}

// Analyze runs segmentation, scoring and selection on a local file without
// encoding anything.
func (p *Pipeline) Analyze(ctx context.Context, path string) (*Analysis, error) {
	info, err := p.tools.ProbeVideo(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}
	if !info.HasVideo {
		return nil, fmt.Errorf("%s has no video stream", path)
	}

	src := &media.SourceVideo{
		Locator:  path,
		Path:     path,
		Duration: info.Duration.Seconds(),
		Size:     info.Size,
		HasAudio: info.HasAudio,
		Valid:    true,
	}
	return p.analyze(ctx, p.logger.With().Str("source", path).Logger(), src)
}

func (p *Pipeline) analyze(ctx context.Context, log zerolog.Logger, src *media.SourceVideo) (*Analysis, error) {
	frames := p.frames(src.Path)
	a := &Analysis{Source: src}

	dead, err := p.isDead(ctx, frames, src)
	if err != nil {
		return nil, err
	}
	if dead {
		log.Info().Float64("threshold", p.config.Analysis.DeadMotionThreshold).Msg("source looks static, skipping")
		return a, nil
	}

	a.Scenes, err = scene.Collect(p.segmenter.Segment(ctx, frames, src.Duration))
	if err != nil {
		return nil, fmt.Errorf("scene detection failed: %w", err)
	}
	log.Debug().Int("scenes", len(a.Scenes)).Msg("scenes detected")

	if src.HasAudio {
		window := p.config.Analysis.RMSWindow
		rms, err := p.tools.AudioRMS(ctx, src.Path, util.Seconds(window))
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			log.Warn().Err(err).Msg("audio analysis failed, scoring without spikes")
		}
		a.Spikes = highlight.DetectSpikes(rms, window, p.config.Analysis.SpikeMultiplier)
	}

	for seg, err := range p.scorer.Candidates(ctx, src, frames, a.Spikes, a.Scenes) {
		if err != nil {
			return nil, fmt.Errorf("scoring failed: %w", err)
		}
		a.Candidates = append(a.Candidates, seg)
	}

	a.Selected, err = p.selector.Select(ctx, src, a.Candidates, p.config.Reel.TopKPerSource)
	if err != nil {
		return nil, fmt.Errorf("selection failed: %w", err)
	}

	log.Info().
		Int("scenes", len(a.Scenes)).
		Int("spikes", len(a.Spikes)).
		Int("candidates", len(a.Candidates)).
		Int("selected", len(a.Selected)).
		Msg("analysis complete")
	return a, nil
}

// isDead reports whether the opening seconds of src are below the dead
// motion threshold. A zero threshold disables the check.
func (p *Pipeline) isDead(ctx context.Context, frames motion.FrameSource, src *media.SourceVideo) (bool, error) {
	threshold := p.config.Analysis.DeadMotionThreshold
	if threshold <= 0 {
		return false, nil
	}

	end := min(p.config.Analysis.DeadCheckSeconds, src.Duration)
	var (
		acc  motion.Accumulator
		prev *motion.Frame
	)
	for f, err := range frames.Frames(ctx, 0, end) {
		if err != nil {
			return false, fmt.Errorf("dead-video check failed: %w", err)
		}
		if prev != nil {
			acc.Add(motion.Diff(*prev, f, p.config.Analysis.MotionPixelThreshold))
		}
		prev = &f
	}
	return acc.Mean().Magnitude < threshold, nil
}
