// Package classify labels tracked people by shirt colour or bib number and
// settles each person's label by a temporally weighted vote.
package classify

import (
	"math"
	"time"

	"github.com/banshee-data/finishline/internal/config"
)

// TemporalWeighting discounts labels that were observed recently. One
// instance is shared by the whole run.
type TemporalWeighting struct {
	minGap    time.Duration
	minWeight float64
	lastSeen  map[string]time.Time
}

// NewTemporalWeighting creates a weighting that ramps from minWeight back up
// to 1 over minGap.
func NewTemporalWeighting(minGap time.Duration, minWeight float64) *TemporalWeighting {
	return &TemporalWeighting{
		minGap:    minGap,
		minWeight: minWeight,
		lastSeen:  make(map[string]time.Time),
	}
}

// NewTemporalWeightingFromTuning reads min_time_between_passes and
// min_color_weight.
func NewTemporalWeightingFromTuning(cfg *config.TuningConfig) *TemporalWeighting {
	return NewTemporalWeighting(cfg.GetMinTimeBetweenPasses(), cfg.GetMinColorWeight())
}

// Weight returns the weight for label at now: 1 for a label never seen or
// last seen at least minGap ago, otherwise max(minWeight, Δt/minGap).
func (w *TemporalWeighting) Weight(label string, now time.Time) float64 {
	last, ok := w.lastSeen[label]
	if !ok || w.minGap <= 0 {
		return 1
	}
	dt := now.Sub(last)
	if dt >= w.minGap {
		return 1
	}
	if dt < 0 {
		dt = 0
	}
	return math.Max(w.minWeight, float64(dt)/float64(w.minGap))
}

// Observe records that label was seen at now.
func (w *TemporalWeighting) Observe(label string, now time.Time) {
	w.lastSeen[label] = now
}

// LastSeen returns when label was last observed.
func (w *TemporalWeighting) LastSeen(label string) (time.Time, bool) {
	t, ok := w.lastSeen[label]
	return t, ok
}
