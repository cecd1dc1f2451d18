package clips

import (
	"github.com/kikiluvv/reelcut/internal/highlight"
	"github.com/kikiluvv/reelcut/internal/media"
	"github.com/samber/lo"
)

// Clip is a normalized media file cut from one selected segment
type Clip struct {
	ID       string
	Path     string
	Source   *media.SourceVideo
	Segment  highlight.SelectedSegment
	Duration float64 // seconds, probed after encoding
	Order    int     // position in the run: source order, then emitted order
}

// HighlightReel is the assembled output of a run
type HighlightReel struct {
	Subject  string
	RunID    string
	Path     string
	Clips    []*Clip
	Duration float64 // seconds, probed
	Expected float64 // seconds, from crossfade offsets
}

// Manager keeps the clips of a run in reel order
type Manager struct {
	clips []*Clip
}

// NewManager creates a new clip manager
func NewManager() *Manager {
	return &Manager{
		clips: make([]*Clip, 0),
	}
}

// Add appends a clip and assigns its order
func (m *Manager) Add(clip *Clip) {
	clip.Order = len(m.clips)
	m.clips = append(m.clips, clip)
}

// Retain keeps only the given clips, preserving the current order
func (m *Manager) Retain(keep []*Clip) {
	ids := lo.SliceToMap(keep, func(c *Clip) (string, struct{}) { return c.ID, struct{}{} })
	m.clips = lo.Filter(m.clips, func(c *Clip, _ int) bool {
		_, ok := ids[c.ID]
		return ok
	})
}

// Len returns the number of clips
func (m *Manager) Len() int { return len(m.clips) }

// All returns all clips in order
func (m *Manager) All() []*Clip {
	return m.clips
}
