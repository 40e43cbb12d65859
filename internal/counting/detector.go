package counting

import (
	"image"
	"time"

	"github.com/banshee-data/finishline/internal/geom"
	"github.com/banshee-data/finishline/internal/monitoring"
	"github.com/banshee-data/finishline/internal/tracking"
)

// Line is the counting segment.
type Line struct {
	Start geom.Point `json:"start"`
	End   geom.Point `json:"end"`
}

// LineFromPoints builds a Line from integer image points.
func LineFromPoints(a, b image.Point) Line {
	return Line{
		Start: geom.Pt(float64(a.X), float64(a.Y)),
		End:   geom.Pt(float64(b.X), float64(b.Y)),
	}
}

// Retirer removes counted identities from tracking.
type Retirer interface {
	Retire(id int64)
}

// Detector turns trajectories that cross the line into CrossingEvents. Each
// identity produces at most one event.
type Detector struct {
	line    Line
	retirer Retirer
	runID   string
	start   time.Time
}

// NewDetector creates a Detector for one run. start is the run's start
// time, used for CrossingEvent.Elapsed.
func NewDetector(line Line, retirer Retirer, runID string, start time.Time) *Detector {
	return &Detector{line: line, retirer: retirer, runID: runID, start: start}
}

// Line returns the counting line.
func (d *Detector) Line() Line {
	return d.line
}

// Check tests the last movement of every object against the line. Objects
// that cross are latched, snapshotted into an event and retired.
func (d *Detector) Check(objects []*tracking.TrackedObject, now time.Time) []CrossingEvent {
	var events []CrossingEvent
	for _, obj := range objects {
		if obj.Crossed || len(obj.Trajectory) < 2 {
			continue
		}
		prev := obj.Trajectory[len(obj.Trajectory)-2]
		cur := obj.Trajectory[len(obj.Trajectory)-1]
		if !geom.Crosses(prev, cur, d.line.Start, d.line.End) {
			continue
		}

		obj.Crossed = true
		obj.State = tracking.StateCrossed

		direction := DirectionDown
		if cur.Y < prev.Y {
			direction = DirectionUp
		}
		label := obj.DominantLabel()
		if label == "" {
			label = UnknownLabel
		}

		ev := CrossingEvent{
			RunID:     d.runID,
			ID:        obj.ID,
			Timestamp: now,
			Elapsed:   now.Sub(d.start),
			Label:     label,
			Direction: direction,
		}
		events = append(events, ev)
		monitoring.Diagf("[counting] object %d crossed %s as %s (%d votes)", obj.ID, direction, label, len(obj.Votes))

		d.retirer.Retire(obj.ID)
	}
	return events
}
