package ffmpeg

import (
	"fmt"
	"strings"
)

// FilterBuilder helps construct ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Scale adds a scale filter
func (fb *FilterBuilder) Scale(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		// Return self without adding filter - allows chaining to continue
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("scale=%d:%d", width, height))
	return fb
}

// Fit scales into width x height preserving aspect ratio and pads the rest black.
func (fb *FilterBuilder) Fit(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black", width, height),
	)
	return fb
}

// SetSAR forces square pixels
func (fb *FilterBuilder) SetSAR() *FilterBuilder {
	fb.filters = append(fb.filters, "setsar=1")
	return fb
}

// FPS adds an fps filter
func (fb *FilterBuilder) FPS(fps float64) *FilterBuilder {
	if fps <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("fps=%g", fps))
	return fb
}

// Format adds a pixel format conversion
func (fb *FilterBuilder) Format(pixFmt string) *FilterBuilder {
	if pixFmt == "" {
		return fb
	}
	fb.filters = append(fb.filters, "format="+pixFmt)
	return fb
}

// AudioFormat normalizes sample format, rate and channel layout
func (fb *FilterBuilder) AudioFormat(sampleFmt string, rate int, layout string) *FilterBuilder {
	fb.filters = append(fb.filters,
		fmt.Sprintf("aformat=sample_fmts=%s:sample_rates=%d:channel_layouts=%s", sampleFmt, rate, layout))
	return fb
}

// Custom adds a custom filter string
func (fb *FilterBuilder) Custom(filter string) *FilterBuilder {
	fb.filters = append(fb.filters, filter)
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	if len(fb.filters) == 0 {
		return ""
	}
	return strings.Join(fb.filters, ",")
}

// Graph assembles a -filter_complex expression out of labelled chains.
type Graph struct {
	chains []string
}

// Chain appends "[in...]filters[out]". Empty filters are rendered as null/anull
// by the caller; Graph does not guess the media type.
func (g *Graph) Chain(inputs []string, filters string, output string) *Graph {
	var b strings.Builder
	for _, in := range inputs {
		b.WriteString("[" + in + "]")
	}
	b.WriteString(filters)
	if output != "" {
		b.WriteString("[" + output + "]")
	}
	g.chains = append(g.chains, b.String())
	return g
}

// Build returns the chains joined with semicolons
func (g *Graph) Build() string {
	return strings.Join(g.chains, ";")
}
