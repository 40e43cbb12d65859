package tracking

import (
	"time"

	"github.com/banshee-data/finishline/internal/geom"
)

// State is the lifecycle state of a tracked object.
type State string

const (
	StateProvisional  State = "provisional"  // Seen in one frame only
	StateActive       State = "active"       // Matched again after creation
	StateDisappearing State = "disappearing" // Missed in the latest frame
	StateCrossed      State = "crossed"      // Counted; about to be retired
	StateRemoved      State = "removed"      // No longer tracked
)

// NoExternalID marks a detection without an external track ID.
const NoExternalID = -1

// Detection is one person box reported by the external detector.
type Detection struct {
	BBox       geom.BBox
	Confidence float64
	// ExternalID is the detector's own track ID, or NoExternalID.
	ExternalID int
}

// Vote is one classification sample for an object.
type Vote struct {
	Label     string    `json:"label"`
	Weight    float64   `json:"weight"`
	Timestamp time.Time `json:"timestamp"`
}

// TrackedObject is one subject followed across frames.
type TrackedObject struct {
	ID    int64
	State State
	BBox  geom.BBox

	// Trajectory holds bottom-centre reference points, oldest first.
	Trajectory []geom.Point

	// Disappeared counts consecutive frames without a match.
	Disappeared int

	// Crossed latches once the object has been counted.
	Crossed bool

	// Votes is the append-only classification history.
	Votes []Vote

	// ExternalID is the last external track ID seen for this object.
	ExternalID int

	FirstFrame int64
	LastFrame  int64
}

// Position returns the latest trajectory point.
func (o *TrackedObject) Position() (geom.Point, bool) {
	if len(o.Trajectory) == 0 {
		return geom.Point{}, false
	}
	return o.Trajectory[len(o.Trajectory)-1], true
}

// DominantLabel returns the label with the most votes. A tie goes to the
// label that was voted for first. It returns "" when o has no votes.
func (o *TrackedObject) DominantLabel() string {
	counts := make(map[string]int)
	var order []string
	for _, vote := range o.Votes {
		if _, ok := counts[vote.Label]; !ok {
			order = append(order, vote.Label)
		}
		counts[vote.Label]++
	}

	best, bestCount := "", 0
	for _, label := range order {
		if counts[label] > bestCount {
			best, bestCount = label, counts[label]
		}
	}
	return best
}

// Clone returns a deep copy of o.
func (o *TrackedObject) Clone() *TrackedObject {
	c := *o
	c.Trajectory = append([]geom.Point(nil), o.Trajectory...)
	c.Votes = append([]Vote(nil), o.Votes...)
	return &c
}

func (o *TrackedObject) observe(det Detection, frame int64, maxTrajectory int) {
	o.BBox = det.BBox
	o.Trajectory = append(o.Trajectory, det.BBox.BottomCenter())
	if over := len(o.Trajectory) - maxTrajectory; over > 0 {
		o.Trajectory = append(o.Trajectory[:0], o.Trajectory[over:]...)
	}
	o.Disappeared = 0
	o.LastFrame = frame
	if det.ExternalID != NoExternalID {
		o.ExternalID = det.ExternalID
	}
}
