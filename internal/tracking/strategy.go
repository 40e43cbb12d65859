package tracking

import (
	"math"
	"sort"

	"github.com/banshee-data/finishline/internal/geom"
)

// Match pairs a detection with an object ID. The ID may belong to an
// existing object or be freshly allocated, in which case the tracker
// creates the object.
type Match struct {
	ObjectID  int64
	Detection int
}

// Strategy decides which detections belong to which objects.
type Strategy interface {
	Name() string

	// Assign returns one Match per detection that should be tracked.
	// Detections left out are dropped for this frame. newID allocates the
	// next identity.
	Assign(objects []*TrackedObject, dets []Detection, newID func() int64) []Match

	// Retire tells the strategy an object has been counted.
	Retire(id int64)
}

// greedyAssign matches rows (objects) to columns (detections) on a cost
// matrix. Rows are visited in order of their cheapest cost and each takes
// its argmin column unless that row or column is already used or the cost
// exceeds gate. Unmatched detections get new identities.
func greedyAssign(objects []*TrackedObject, nDets int, cost func(o *TrackedObject, d int) float64, gate float64, newID func() int64) []Match {
	matches := make([]Match, 0, nDets)
	usedCols := make([]bool, nDets)

	if len(objects) > 0 && nDets > 0 {
		type row struct {
			idx    int
			min    float64
			argmin int
		}
		rows := make([]row, len(objects))
		for i, o := range objects {
			r := row{idx: i, min: math.Inf(1), argmin: -1}
			for d := 0; d < nDets; d++ {
				if c := cost(o, d); c < r.min {
					r.min, r.argmin = c, d
				}
			}
			rows[i] = r
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].min < rows[j].min })

		for _, r := range rows {
			if r.argmin < 0 || usedCols[r.argmin] || r.min > gate {
				continue
			}
			usedCols[r.argmin] = true
			matches = append(matches, Match{ObjectID: objects[r.idx].ID, Detection: r.argmin})
		}
	}

	for d := 0; d < nDets; d++ {
		if !usedCols[d] {
			matches = append(matches, Match{ObjectID: newID(), Detection: d})
		}
	}
	return matches
}

// NearestCentroid matches on the distance between an object's last
// reference point and a detection's bottom-centre.
type NearestCentroid struct {
	MaxDistance float64
}

func (NearestCentroid) Name() string { return "centroid" }

func (s NearestCentroid) Assign(objects []*TrackedObject, dets []Detection, newID func() int64) []Match {
	return greedyAssign(objects, len(dets), func(o *TrackedObject, d int) float64 {
		pos, ok := o.Position()
		if !ok {
			pos = o.BBox.BottomCenter()
		}
		return geom.Dist(pos, dets[d].BBox.BottomCenter())
	}, s.MaxDistance, newID)
}

func (NearestCentroid) Retire(int64) {}

// IoUGreedy matches on box overlap, using 1-IoU as the cost.
type IoUGreedy struct {
	MinIoU float64
}

func (IoUGreedy) Name() string { return "iou" }

func (s IoUGreedy) Assign(objects []*TrackedObject, dets []Detection, newID func() int64) []Match {
	return greedyAssign(objects, len(dets), func(o *TrackedObject, d int) float64 {
		return 1 - geom.IoU(o.BBox, dets[d].BBox)
	}, 1-s.MinIoU, newID)
}

func (IoUGreedy) Retire(int64) {}

// ExternalCorrelation trusts the detector's own track IDs. Each external ID
// is mapped, on first sight, to the next internal ID, so internal IDs stay
// monotonic when the detector resets or reuses its IDs. Detections whose
// internal ID has already been counted are ignored.
type ExternalCorrelation struct {
	internal map[int]int64
	retired  map[int64]struct{}
}

// NewExternalCorrelation creates an empty ExternalCorrelation.
func NewExternalCorrelation() *ExternalCorrelation {
	return &ExternalCorrelation{
		internal: make(map[int]int64),
		retired:  make(map[int64]struct{}),
	}
}

func (*ExternalCorrelation) Name() string { return "external" }

func (s *ExternalCorrelation) Assign(_ []*TrackedObject, dets []Detection, newID func() int64) []Match {
	matches := make([]Match, 0, len(dets))
	claimed := make(map[int64]struct{}, len(dets))
	for d, det := range dets {
		if det.ExternalID == NoExternalID {
			continue
		}
		id, ok := s.internal[det.ExternalID]
		if !ok {
			id = newID()
			s.internal[det.ExternalID] = id
		}
		if _, done := s.retired[id]; done {
			continue
		}
		if _, dup := claimed[id]; dup {
			continue
		}
		claimed[id] = struct{}{}
		matches = append(matches, Match{ObjectID: id, Detection: d})
	}
	return matches
}

func (s *ExternalCorrelation) Retire(id int64) {
	s.retired[id] = struct{}{}
}
