// Package tracking follows detected people across frames and gives each one
// a stable identity.
package tracking

import (
	"fmt"
	"sort"

	"github.com/banshee-data/finishline/internal/config"
	"github.com/banshee-data/finishline/internal/monitoring"
)

// TrackerConfig holds the tracker limits.
type TrackerConfig struct {
	MaxDisappeared   int // Consecutive misses tolerated before removal
	TrajectoryLength int // Reference points kept per object
}

// DefaultTrackerConfig returns the default limits.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxDisappeared:   30,
		TrajectoryLength: 30,
	}
}

// Tracker owns the set of tracked objects. It is not safe for concurrent
// use; the pipeline drives it from a single goroutine.
type Tracker struct {
	config   TrackerConfig
	strategy Strategy

	objects map[int64]*TrackedObject
	nextID  int64
	frame   int64
}

// NewTracker creates a tracker using the given matching strategy.
func NewTracker(cfg TrackerConfig, strategy Strategy) *Tracker {
	if cfg.TrajectoryLength < 2 {
		cfg.TrajectoryLength = 2
	}
	return &Tracker{
		config:   cfg,
		strategy: strategy,
		objects:  make(map[int64]*TrackedObject),
		nextID:   1,
	}
}

// NewTrackerFromTuning builds a tracker and its strategy from the tuning
// config.
func NewTrackerFromTuning(cfg *config.TuningConfig) (*Tracker, error) {
	var strategy Strategy
	switch name := cfg.GetTrackerStrategy(); name {
	case config.StrategyCentroid:
		strategy = NearestCentroid{MaxDistance: cfg.GetMaxDistance()}
	case config.StrategyIoU:
		strategy = IoUGreedy{MinIoU: cfg.GetMinIoU()}
	case config.StrategyExternal:
		strategy = NewExternalCorrelation()
	default:
		return nil, fmt.Errorf("unknown tracker strategy %q", name)
	}
	return NewTracker(TrackerConfig{
		MaxDisappeared:   cfg.GetMaxDisappearFrames(),
		TrajectoryLength: cfg.GetTrajectoryLength(),
	}, strategy), nil
}

// Strategy returns the matching strategy in use.
func (t *Tracker) Strategy() Strategy {
	return t.strategy
}

// SetNextID makes id the next identity handed out. It never moves the
// counter backwards, so identities already issued stay unique.
func (t *Tracker) SetNextID(id int64) {
	if id > t.nextID {
		t.nextID = id
	}
}

func (t *Tracker) allocID() int64 {
	id := t.nextID
	t.nextID++
	return id
}

// Update folds one frame of detections into the tracked set and returns the
// tracked objects, ordered by ID. An empty detection list only ages the
// existing objects.
func (t *Tracker) Update(dets []Detection) []*TrackedObject {
	t.frame++

	current := t.sorted()
	matches := t.strategy.Assign(current, dets, t.allocID)

	seen := make(map[int64]struct{}, len(matches))
	for _, m := range matches {
		det := dets[m.Detection]
		obj, ok := t.objects[m.ObjectID]
		if !ok {
			obj = &TrackedObject{
				ID:         m.ObjectID,
				State:      StateProvisional,
				ExternalID: NoExternalID,
				FirstFrame: t.frame,
			}
			t.objects[m.ObjectID] = obj
			monitoring.Tracef("[tracking] new object %d at %v", obj.ID, det.BBox)
		} else {
			obj.State = StateActive
		}
		obj.observe(det, t.frame, t.config.TrajectoryLength)
		seen[obj.ID] = struct{}{}
	}

	for _, obj := range current {
		if _, ok := seen[obj.ID]; ok {
			continue
		}
		obj.Disappeared++
		obj.State = StateDisappearing
		if obj.Disappeared > t.config.MaxDisappeared {
			obj.State = StateRemoved
			delete(t.objects, obj.ID)
			monitoring.Tracef("[tracking] object %d removed after %d missed frames", obj.ID, obj.Disappeared)
		}
	}

	return t.sorted()
}

// Retire removes a counted object. Its ID is never handed out again.
func (t *Tracker) Retire(id int64) {
	if obj, ok := t.objects[id]; ok {
		obj.State = StateRemoved
		delete(t.objects, id)
	}
	t.strategy.Retire(id)
}

// Get returns the object with the given ID, or nil.
func (t *Tracker) Get(id int64) *TrackedObject {
	return t.objects[id]
}

// Active returns copies of the tracked objects, ordered by ID.
func (t *Tracker) Active() []*TrackedObject {
	objs := t.sorted()
	out := make([]*TrackedObject, len(objs))
	for i, o := range objs {
		out[i] = o.Clone()
	}
	return out
}

// Len returns the number of tracked objects.
func (t *Tracker) Len() int {
	return len(t.objects)
}

// Frame returns the number of frames processed.
func (t *Tracker) Frame() int64 {
	return t.frame
}

// Reset drops every tracked object and returns how many were dropped.
// Identities already handed out are not reused.
func (t *Tracker) Reset() int {
	n := len(t.objects)
	for id, obj := range t.objects {
		obj.State = StateRemoved
		delete(t.objects, id)
	}
	return n
}

func (t *Tracker) sorted() []*TrackedObject {
	out := make([]*TrackedObject, 0, len(t.objects))
	for _, o := range t.objects {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
