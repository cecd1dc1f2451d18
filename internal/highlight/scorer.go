package highlight

import (
	"context"
	"fmt"
	"iter"
	"math"

	"github.com/kikiluvv/reelcut/internal/media"
	"github.com/kikiluvv/reelcut/internal/motion"
	"github.com/kikiluvv/reelcut/internal/scene"
	"github.com/rs/zerolog"
)

// Config configures scoring and boundary extension
type Config struct {
	MinLen    float64 // seconds
	MaxLen    float64 // seconds
	PadBefore float64 // seconds

	// Per-pixel luma difference counted towards density.
	PixelThreshold int
	// Mean step motion at or above this keeps extension going.
	ActiveThreshold float64
	ExtendStep      float64 // seconds
	CooldownSteps   int
	SpikeProximity  float64 // seconds

	Weights Weights
}

func DefaultConfig() Config {
	return Config{
		MinLen:          3,
		MaxLen:          12,
		PadBefore:       0.3,
		PixelThreshold:  25,
		ActiveThreshold: 5,
		ExtendStep:      0.5,
		CooldownSteps:   3,
		SpikeProximity:  0.5,
		Weights:         DefaultWeights(),
	}
}

// Scorer turns scenes into scored, extended and clamped candidates
type Scorer struct {
	logger zerolog.Logger
	config Config
}

// NewScorer creates a scorer
func NewScorer(logger zerolog.Logger, cfg Config) *Scorer {
	if cfg.ExtendStep <= 0 {
		cfg.ExtendStep = DefaultConfig().ExtendStep
	}
	if cfg.CooldownSteps <= 0 {
		cfg.CooldownSteps = DefaultConfig().CooldownSteps
	}
	return &Scorer{
		logger: logger.With().Str("component", "scorer").Logger(),
		config: cfg,
	}
}

// ScoreAndExtend scores one scene and returns the padded, extended and
// clamped segment. ok is false when the clamped segment is shorter than MinLen.
//
// The scene body and the extension window are read in a single decode pass
// over [Start, max(End, Start+MaxLen)) bounded by the video duration.
func (s *Scorer) ScoreAndExtend(ctx context.Context, src *media.SourceVideo, frames motion.FrameSource, spikes []float64, sc scene.Scene) (seg ScoredSegment, ok bool, err error) {
	cfg := s.config
	decodeEnd := math.Min(math.Max(sc.End, sc.Start+cfg.MaxLen), src.Duration)

	ext := &extender{
		origin:    sc.End,
		step:      cfg.ExtendStep,
		limit:     math.Min(sc.Start+cfg.MaxLen, decodeEnd),
		threshold: cfg.ActiveThreshold,
		cooldown:  cfg.CooldownSteps,
		spikes:    spikes,
		proximity: cfg.SpikeProximity,
		lastEnd:   sc.End,
	}
	ext.done = ext.limit <= ext.origin

	var (
		body     motion.Accumulator
		prev     motion.Frame
		havePrev bool
		crossed  bool
	)
	for frame, ferr := range frames.Frames(ctx, sc.Start, decodeEnd) {
		if ferr != nil {
			return ScoredSegment{}, false, fmt.Errorf("scoring scene %d: %w", sc.Index, ferr)
		}
		if !havePrev {
			prev, havePrev = frame, true
			continue
		}
		if frame.Time >= sc.End && !crossed {
			// the pair straddling the scene end belongs to neither side
			prev, crossed = frame, true
			continue
		}
		d := motion.Diff(prev, frame, cfg.PixelThreshold)
		prev = frame

		if frame.Time < sc.End {
			body.Add(d)
			continue
		}
		if !ext.add(frame.Time, d) {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return ScoredSegment{}, false, err
	}
	ext.finish()

	mean := body.Mean()
	spike := anySpikeIn(spikes, sc.Start, sc.End)

	start := math.Max(0, sc.Start-cfg.PadBefore)
	end := math.Min(math.Min(math.Max(sc.End, ext.lastEnd), start+cfg.MaxLen), src.Duration)

	seg = ScoredSegment{
		Source:    src,
		SceneIdx:  sc.Index,
		Start:     start,
		End:       end,
		Motion:    mean.Magnitude,
		Density:   mean.Density,
		Spike:     spike,
		Composite: cfg.Weights.Composite(mean.Magnitude, mean.Density, spike),
	}

	s.logger.Debug().
		Int("scene", sc.Index).
		Float64("scene_start", sc.Start).
		Float64("scene_end", sc.End).
		Float64("extended_end", ext.lastEnd).
		Float64("motion", seg.Motion).
		Float64("density", seg.Density).
		Bool("spike", spike).
		Float64("composite", seg.Composite).
		Msg("scored scene")

	if seg.Duration() < cfg.MinLen {
		return seg, false, nil
	}
	return seg, true, nil
}

// Candidates lazily scores the windows of a scene list. Runs of scenes
// shorter than MinLen are merged and scenes longer than MaxLen are split into
// equal windows, see Windows. Windows whose clamped segment is too short are
// skipped.
func (s *Scorer) Candidates(ctx context.Context, src *media.SourceVideo, frames motion.FrameSource, spikes []float64, scenes []scene.Scene) iter.Seq2[ScoredSegment, error] {
	return func(yield func(ScoredSegment, error) bool) {
		for _, sc := range Windows(scenes, s.config.MinLen, s.config.MaxLen) {
			if err := ctx.Err(); err != nil {
				yield(ScoredSegment{}, err)
				return
			}
			if sc.Duration() < s.config.MinLen {
				continue
			}
			seg, ok, err := s.ScoreAndExtend(ctx, src, frames, spikes, sc)
			if err != nil {
				yield(ScoredSegment{}, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(seg, nil) {
				return
			}
		}
	}
}

// Windows turns contiguous scenes into scoring windows. Consecutive scenes
// shorter than minLen are joined until they reach it and a short remainder
// joins the window before it. A window longer than maxLen is cut into the
// fewest equal parts no longer than maxLen. Windows keep the index of the
// scene they start in.
func Windows(scenes []scene.Scene, minLen, maxLen float64) []scene.Scene {
	var merged []scene.Scene
	for i := 0; i < len(scenes); {
		cur := scenes[i]
		i++
		for cur.Duration() < minLen && i < len(scenes) && scenes[i].Start == cur.End {
			cur.End = scenes[i].End
			i++
		}
		if cur.Duration() < minLen && len(merged) > 0 && merged[len(merged)-1].End == cur.Start {
			merged[len(merged)-1].End = cur.End
			continue
		}
		merged = append(merged, cur)
	}

	if maxLen <= 0 {
		return merged
	}
	out := make([]scene.Scene, 0, len(merged))
	for _, sc := range merged {
		n := int(math.Ceil(sc.Duration()/maxLen - 1e-9))
		if n <= 1 {
			out = append(out, sc)
			continue
		}
		w := sc.Duration() / float64(n)
		for k := 0; k < n; k++ {
			win := scene.Scene{Index: sc.Index, Start: sc.Start + float64(k)*w, End: sc.Start + float64(k+1)*w}
			if k == n-1 {
				win.End = sc.End
			}
			out = append(out, win)
		}
	}
	return out
}

// extender walks fixed steps after a scene end and remembers the end of the
// last step that was still active.
type extender struct {
	origin    float64
	step      float64
	limit     float64
	threshold float64
	cooldown  int
	spikes    []float64
	proximity float64

	cur      int
	acc      motion.Accumulator
	inactive int
	lastEnd  float64
	done     bool
}

// add records a delta observed at time t. It returns false once extension is over.
func (x *extender) add(t float64, d motion.Delta) bool {
	if x.done {
		return false
	}
	if t >= x.limit {
		x.closeStep()
		x.done = true
		return false
	}
	idx := int((t - x.origin) / x.step)
	for x.cur < idx {
		if !x.closeStep() {
			return false
		}
	}
	x.acc.Add(d)
	return true
}

// closeStep evaluates the current step and advances. It returns false when
// the cooldown ran out or the budget is spent.
func (x *extender) closeStep() bool {
	start := x.origin + float64(x.cur)*x.step
	end := math.Min(start+x.step, x.limit)

	active := anySpikeNear(x.spikes, start, end, x.proximity)
	if x.acc.Count() > 0 && x.acc.Mean().Magnitude >= x.threshold {
		active = true
	}

	x.acc = motion.Accumulator{}
	x.cur++

	if active {
		x.lastEnd = end
		x.inactive = 0
	} else {
		x.inactive++
		if x.inactive >= x.cooldown {
			x.done = true
			return false
		}
	}
	if end >= x.limit {
		x.done = true
		return false
	}
	return true
}

// finish closes the step in progress when frames ran out.
func (x *extender) finish() {
	if !x.done {
		x.closeStep()
		x.done = true
	}
}
