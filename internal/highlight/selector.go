package highlight

import (
	"context"
	"math"
	"sort"

	"github.com/kikiluvv/reelcut/internal/media"
	"github.com/samber/lo"
)

// Selector chooses at most topK non-overlapping segments of one source.
type Selector interface {
	Select(ctx context.Context, src *media.SourceVideo, segments []ScoredSegment, topK int) ([]SelectedSegment, error)
}

// SelectorConfig controls fallback and emitted order
type SelectorConfig struct {
	FallbackFloor float64 // seconds; shorter sources get no fallback
	FallbackLen   float64 // seconds
	Chronological bool    // emit picks by start time instead of by rank
}

func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{FallbackFloor: 2, FallbackLen: 5}
}

// ScoreSelector ranks by composite score, earlier start first on ties, and
// accepts greedily while segments do not overlap. It never fails.
type ScoreSelector struct {
	config SelectorConfig
}

// NewScoreSelector creates the default selector
func NewScoreSelector(cfg SelectorConfig) *ScoreSelector {
	return &ScoreSelector{config: cfg}
}

func (s *ScoreSelector) Select(ctx context.Context, src *media.SourceVideo, segments []ScoredSegment, topK int) ([]SelectedSegment, error) {
	ranked := RankByScore(segments)
	return s.finish(src, Greedy(ranked, topK)), nil
}

// finish applies the fallback and the emitted order.
func (s *ScoreSelector) finish(src *media.SourceVideo, picked []SelectedSegment) []SelectedSegment {
	if len(picked) == 0 {
		if fb, ok := Fallback(src, s.config); ok {
			return []SelectedSegment{fb}
		}
		return nil
	}
	if s.config.Chronological {
		sort.SliceStable(picked, func(i, j int) bool { return picked[i].Start < picked[j].Start })
	}
	return picked
}

// RankByScore returns a copy sorted by composite descending, ties by earlier start.
func RankByScore(segments []ScoredSegment) []ScoredSegment {
	return lo.Map(rankIndices(segments), func(i int, _ int) ScoredSegment { return segments[i] })
}

func rankIndices(segments []ScoredSegment) []int {
	idx := lo.Range(len(segments))
	sort.SliceStable(idx, func(a, b int) bool {
		sa, sb := segments[idx[a]], segments[idx[b]]
		if sa.Composite != sb.Composite {
			return sa.Composite > sb.Composite
		}
		return sa.Start < sb.Start
	})
	return idx
}

// Greedy walks ranked in order and keeps segments that overlap nothing kept so far.
func Greedy(ranked []ScoredSegment, topK int) []SelectedSegment {
	if topK <= 0 {
		return nil
	}
	var picked []SelectedSegment
	for _, seg := range ranked {
		clash := lo.ContainsBy(picked, func(p SelectedSegment) bool {
			return p.Overlaps(seg)
		})
		if clash {
			continue
		}
		picked = append(picked, SelectedSegment{ScoredSegment: seg, Rank: len(picked)})
		if len(picked) == topK {
			break
		}
	}
	return picked
}

// Fallback returns [0, min(FallbackLen, duration)) when the source is longer
// than the floor. It is used when no scored segment qualified.
func Fallback(src *media.SourceVideo, cfg SelectorConfig) (SelectedSegment, bool) {
	if src == nil || src.Duration <= cfg.FallbackFloor {
		return SelectedSegment{}, false
	}
	return SelectedSegment{
		ScoredSegment: ScoredSegment{
			Source:   src,
			SceneIdx: -1,
			Start:    0,
			End:      math.Min(cfg.FallbackLen, src.Duration),
		},
		Fallback: true,
	}, true
}
