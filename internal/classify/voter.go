package classify

import (
	"time"

	"github.com/banshee-data/finishline/internal/tracking"
)

// Vote is one classification sample.
type Vote = tracking.Vote

// Voter appends classification samples to tracked objects.
type Voter struct {
	weighting *TemporalWeighting
}

// NewVoter creates a Voter sharing the run's temporal weighting.
func NewVoter(w *TemporalWeighting) *Voter {
	return &Voter{weighting: w}
}

// Vote records label for obj at now, weighted by how recently the label was
// last seen, then marks the label as seen. Empty labels are ignored.
func (v *Voter) Vote(obj *tracking.TrackedObject, label string, now time.Time) {
	if label == "" {
		return
	}
	obj.Votes = append(obj.Votes, Vote{
		Label:     label,
		Weight:    v.weighting.Weight(label, now),
		Timestamp: now,
	})
	v.weighting.Observe(label, now)
}
