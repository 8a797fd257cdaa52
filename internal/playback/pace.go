package playback

import (
	"math"

	"github.com/ensam-campus/wayfinder/internal/config"
)

// PaceTable is the ordered list of walking-pace multipliers, slowest first.
type PaceTable struct {
	rates  []float64
	labels []string
	center int
}

// NewPaceTable builds the pace table from the tuning. The tuning must have passed
// Validate, so the table is sorted and holds a 1x entry.
func NewPaceTable(t config.Tuning) PaceTable {
	center := t.NormalPaceIndex()
	if center < 0 {
		center = len(t.PaceRates) / 2
	}
	return PaceTable{
		rates:  append([]float64(nil), t.PaceRates...),
		labels: append([]string(nil), t.PaceLabels...),
		center: center,
	}
}

// Len returns the number of paces.
func (p PaceTable) Len() int { return len(p.rates) }

// Center returns the index of the normal pace.
func (p PaceTable) Center() int { return p.center }

// Rate returns the multiplier at index i.
func (p PaceTable) Rate(i int) float64 { return p.rates[p.clamp(i)] }

// Label returns the display label at index i.
func (p PaceTable) Label(i int) string { return p.labels[p.clamp(i)] }

// IndexFor maps an upward displacement in pixels to a pace index. Every full
// sensitivity pixels moves one entry away from normal; the result is clamped to
// the table.
func (p PaceTable) IndexFor(displacementPx, sensitivityPx float64) int {
	if sensitivityPx <= 0 || math.IsNaN(displacementPx) {
		return p.center
	}
	offset := int(math.Trunc(displacementPx / sensitivityPx))
	return p.clamp(p.center + offset)
}

func (p PaceTable) clamp(i int) int {
	if i < 0 {
		return 0
	}
	if i > len(p.rates)-1 {
		return len(p.rates) - 1
	}
	return i
}
