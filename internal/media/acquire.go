// Package media stages remote or local videos into the run workspace and
// validates them before analysis.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kikiluvv/reelcut/internal/ffmpeg"
	"github.com/kikiluvv/reelcut/pkg/util"
	"github.com/rs/zerolog"
)

// SourceVideo is a locally staged, validated copy of one source.
type SourceVideo struct {
	Index    int
	Locator  string
	Path     string
	Duration float64 // seconds
	Size     int64
	HasAudio bool
	Valid    bool
}

// Config bounds what the acquirer accepts
type Config struct {
	MaxDuration  float64 // seconds
	MaxSize      int64   // bytes
	Remux        bool
	VerifyDecode bool
	Timeout      time.Duration // per source, 0 = none
}

func DefaultConfig() Config {
	return Config{
		MaxDuration: 1200,
		MaxSize:     200 << 20,
		Remux:       true,
		Timeout:     10 * time.Minute,
	}
}

// MediaTool is the subset of the ffmpeg executor used during acquisition.
type MediaTool interface {
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
	Remux(ctx context.Context, input, output string) error
	VerifyDecode(ctx context.Context, input string) error
}

// Stager hands out registered staging paths.
type Stager interface {
	NewFile(prefix, ext string) (string, error)
	Release(path string) error
}

// Acquirer downloads and validates sources
type Acquirer struct {
	logger  zerolog.Logger
	fetcher Fetcher
	tool    MediaTool
	stage   Stager
	config  Config
}

// NewAcquirer creates an acquirer
func NewAcquirer(logger zerolog.Logger, fetcher Fetcher, tool MediaTool, stage Stager, cfg Config) *Acquirer {
	return &Acquirer{
		logger:  logger.With().Str("component", "acquire").Logger(),
		fetcher: fetcher,
		tool:    tool,
		stage:   stage,
		config:  cfg,
	}
}

// Acquire stages locator into the workspace and validates it. Every failure
// is an *AcquisitionError and leaves nothing behind in the workspace.
func (a *Acquirer) Acquire(ctx context.Context, locator string) (*SourceVideo, error) {
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	dest, err := a.stage.NewFile("source", ".mp4")
	if err != nil {
		return nil, acquisitionError(locator, ReasonNetwork, fmt.Errorf("failed to stage: %w", err))
	}

	log := a.logger.With().Str("locator", locator).Str("path", dest).Logger()
	log.Info().Msg("acquiring source")

	src, err := a.acquire(ctx, locator, dest)
	if err != nil {
		a.release(dest)
		return nil, err
	}

	log.Info().
		Str("staged", src.Path).
		Float64("duration", src.Duration).
		Int64("size", src.Size).
		Bool("audio", src.HasAudio).
		Msg("source acquired")
	return src, nil
}

func (a *Acquirer) acquire(ctx context.Context, locator, dest string) (*SourceVideo, error) {
	if err := a.fetcher.Fetch(ctx, locator, dest); err != nil {
		return nil, classifyFetch(ctx, locator, err)
	}

	src, err := a.validate(ctx, locator, dest)
	if err != nil {
		return nil, err
	}

	if a.config.Remux {
		src.Path = a.remux(ctx, dest)
	}
	return src, nil
}

func classifyFetch(ctx context.Context, locator string, err error) error {
	var ae *AcquisitionError
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, errTooLarge):
		return acquisitionError(locator, ReasonTooLarge, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded), ffmpeg.IsTimeout(err):
		return acquisitionError(locator, ReasonTimeout, err)
	}
	return acquisitionError(locator, ReasonNetwork, err)
}

// validate checks, in order: exists, non-empty, size ceiling, probe-able
// with a video stream, duration within (0, MaxDuration].
func (a *Acquirer) validate(ctx context.Context, locator, path string) (*SourceVideo, error) {
	size, err := util.FileSize(path)
	if err != nil {
		return nil, acquisitionError(locator, ReasonEmpty, fmt.Errorf("download produced no file: %w", err))
	}
	if size == 0 {
		return nil, acquisitionError(locator, ReasonEmpty, fmt.Errorf("download produced an empty file"))
	}
	if a.config.MaxSize > 0 && size > a.config.MaxSize {
		return nil, acquisitionError(locator, ReasonTooLarge,
			fmt.Errorf("%d bytes exceeds limit of %d", size, a.config.MaxSize))
	}

	info, err := a.tool.ProbeVideo(ctx, path)
	if err != nil {
		if ffmpeg.IsTimeout(err) {
			return nil, acquisitionError(locator, ReasonTimeout, err)
		}
		return nil, acquisitionError(locator, ReasonCorrupt, err)
	}
	if !info.HasVideo {
		return nil, acquisitionError(locator, ReasonCorrupt, fmt.Errorf("no video stream"))
	}

	duration := info.Duration.Seconds()
	if duration <= 0 {
		return nil, acquisitionError(locator, ReasonCorrupt, fmt.Errorf("unknown duration"))
	}
	if a.config.MaxDuration > 0 && duration > a.config.MaxDuration {
		return nil, acquisitionError(locator, ReasonTooLong,
			fmt.Errorf("%.1fs exceeds limit of %.0fs", duration, a.config.MaxDuration))
	}

	if a.config.VerifyDecode {
		if err := a.tool.VerifyDecode(ctx, path); err != nil {
			return nil, acquisitionError(locator, ReasonCorrupt, err)
		}
	}

	return &SourceVideo{
		Locator:  locator,
		Path:     path,
		Duration: duration,
		Size:     size,
		HasAudio: info.HasAudio,
		Valid:    true,
	}, nil
}

// remux normalizes the container. On failure the original is kept.
func (a *Acquirer) remux(ctx context.Context, path string) string {
	out, err := a.stage.NewFile("remux", ".mp4")
	if err != nil {
		a.logger.Warn().Err(err).Msg("remux skipped")
		return path
	}
	if err := a.tool.Remux(ctx, path, out); err != nil {
		a.logger.Warn().Err(err).Str("path", path).Msg("remux failed, keeping original")
		a.release(out)
		return path
	}
	a.release(path)
	return out
}

func (a *Acquirer) release(path string) {
	if err := a.stage.Release(path); err != nil {
		a.logger.Warn().Err(err).Str("path", path).Msg("failed to release staged file")
	}
}
