package dedup

import (
	"context"
	"fmt"
	"image"

	"github.com/kikiluvv/reelcut/internal/clips"
	"github.com/rs/zerolog"
)

// FrameReader decodes the first frame of a clip.
type FrameReader interface {
	FirstFrame(ctx context.Context, path string) (image.Image, error)
}

// Deduplicator keeps the first of every group of look-alike clips
type Deduplicator struct {
	logger    zerolog.Logger
	frames    FrameReader
	threshold int
}

// New creates a deduplicator. Clips are duplicates when their hash distance
// is at most threshold.
func New(logger zerolog.Logger, frames FrameReader, threshold int) *Deduplicator {
	return &Deduplicator{
		logger:    logger.With().Str("component", "dedup").Logger(),
		frames:    frames,
		threshold: threshold,
	}
}

type hashed struct {
	clip *clips.Clip
	hash Hash
}

// Deduplicate walks clips in order and keeps a clip only when its hash is
// farther than the threshold from every clip kept before it. Clips that
// cannot be hashed are kept.
func (d *Deduplicator) Deduplicate(ctx context.Context, in []*clips.Clip) (kept, dropped []*clips.Clip) {
	var seen []hashed

	for _, clip := range in {
		h, err := d.hash(ctx, clip)
		if err != nil {
			d.logger.Warn().Err(err).Str("clip", clip.ID).Msg("hash failed, keeping clip")
			kept = append(kept, clip)
			continue
		}

		dupOf := ""
		for _, s := range seen {
			if Distance(h, s.hash) <= d.threshold {
				dupOf = s.clip.ID
				break
			}
		}
		if dupOf != "" {
			d.logger.Info().
				Str("clip", clip.ID).
				Str("duplicate_of", dupOf).
				Msg("dropping duplicate clip")
			dropped = append(dropped, clip)
			continue
		}

		seen = append(seen, hashed{clip: clip, hash: h})
		kept = append(kept, clip)
	}

	d.logger.Info().
		Int("input", len(in)).
		Int("kept", len(kept)).
		Int("dropped", len(dropped)).
		Msg("deduplication complete")
	return kept, dropped
}

func (d *Deduplicator) hash(ctx context.Context, clip *clips.Clip) (Hash, error) {
	img, err := d.frames.FirstFrame(ctx, clip.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to read first frame: %w", err)
	}
	return AverageHash(img), nil
}
