// Package pipeline runs the per-frame chain: resize, recalibrate, correct,
// detect, track, classify, count. One goroutine drives a Pipeline; the
// snapshot accessors may be called from any goroutine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/banshee-data/finishline/internal/chart"
	"github.com/banshee-data/finishline/internal/classify"
	"github.com/banshee-data/finishline/internal/colorcal"
	"github.com/banshee-data/finishline/internal/config"
	"github.com/banshee-data/finishline/internal/counting"
	"github.com/banshee-data/finishline/internal/detection"
	"github.com/banshee-data/finishline/internal/geom"
	"github.com/banshee-data/finishline/internal/monitoring"
	"github.com/banshee-data/finishline/internal/timeutil"
	"github.com/banshee-data/finishline/internal/tracking"
)

const recentCrossingsKept = 100

var ErrEmptyFrame = errors.New("empty frame")

// CrossingSink receives every crossing after it has been aggregated.
type CrossingSink interface {
	Publish(ctx context.Context, ev counting.CrossingEvent) error
}

// Options wires a Pipeline. Config and Detections are required.
type Options struct {
	Config     *config.TuningConfig
	Detections detection.Source
	// Classifier may be nil, in which case every crossing is unlabelled.
	Classifier classify.Classifier
	// Weighting is shared with the classifier. Built from Config when nil.
	Weighting  *classify.TemporalWeighting
	ChartCache colorcal.ChartCache
	CacheDir   string
	Mask       *Mask
	Sinks      []CrossingSink
	Clock      timeutil.Clock
	// RunID defaults to a random UUID.
	RunID      string
	// FirstID seeds the tracker's identities when resuming a run, so new
	// objects never reuse an ID already in its crossing log.
	FirstID    int64
}

// FrameResult is the outcome of one frame. The caller owns Corrected.
type FrameResult struct {
	Index      int64
	Corrected  gocv.Mat
	Events     []counting.CrossingEvent
	Calibrated bool
}

// Close releases the corrected frame.
func (r *FrameResult) Close() error {
	return r.Corrected.Close()
}

// TrackSnapshot is a read-only view of one tracked object.
type TrackSnapshot struct {
	ID         int64          `json:"id"`
	State      tracking.State `json:"state"`
	BBox       geom.BBox      `json:"bbox"`
	Trajectory []geom.Point   `json:"trajectory"`
	Label      string         `json:"label"`
	Votes      int            `json:"votes"`
}

// Status summarises the run.
type Status struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	Frames         int64     `json:"frames"`
	Running        bool      `json:"running"`
	Calibrated     bool      `json:"calibrated"`
	LastCalibrated time.Time `json:"last_calibrated"`
	Tracked        int       `json:"tracked"`
	Crossings      int       `json:"crossings"`
}

type Pipeline struct {
	width, height int
	runID         string
	start         time.Time
	clock         timeutil.Clock

	source     detection.Source
	mask       *Mask
	scheduler  *colorcal.Scheduler
	tracker    *tracking.Tracker
	voter      *classify.Voter
	classifier classify.Classifier
	detector   *counting.Detector
	aggregator *counting.Aggregator
	sinks      []CrossingSink

	frame int64

	mu     sync.RWMutex
	tracks []TrackSnapshot
	recent []counting.CrossingEvent
	status Status
}

// New builds a Pipeline from opts.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("pipeline config is required")
	}
	if opts.Detections == nil {
		return nil, fmt.Errorf("detection source is required")
	}
	cfg := opts.Config
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	weighting := opts.Weighting
	if weighting == nil {
		weighting = classify.NewTemporalWeightingFromTuning(cfg)
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	tracker, err := tracking.NewTrackerFromTuning(cfg)
	if err != nil {
		return nil, err
	}
	tracker.SetNextID(opts.FirstID)
	lineStart, lineEnd := cfg.GetCountingLine()
	start := clock.Now()

	p := &Pipeline{
		width:      cfg.GetOutputWidth(),
		height:     cfg.GetOutputHeight(),
		runID:      runID,
		start:      start,
		clock:      clock,
		source:     opts.Detections,
		mask:       opts.Mask,
		scheduler:  colorcal.NewScheduler(cfg, opts.ChartCache, opts.CacheDir, clock),
		tracker:    tracker,
		voter:      classify.NewVoter(weighting),
		classifier: opts.Classifier,
		detector:   counting.NewDetector(counting.LineFromPoints(lineStart, lineEnd), tracker, runID, start),
		aggregator: counting.NewAggregator(),
		sinks:      opts.Sinks,
		status:     Status{RunID: runID, StartedAt: start},
	}
	monitoring.Opsf("[pipeline] run %s: %dx%d tracker=%s line=%v-%v",
		runID, p.width, p.height, tracker.Strategy().Name(), lineStart, lineEnd)
	return p, nil
}

// RunID identifies this run in crossings and logs.
func (p *Pipeline) RunID() string { return p.runID }

// Aggregator returns the running totals.
func (p *Pipeline) Aggregator() *counting.Aggregator { return p.aggregator }

// SetSinks replaces the crossing sinks. It must not be called while the
// pipeline is running.
func (p *Pipeline) SetSinks(sinks []CrossingSink) {
	p.sinks = sinks
}

// RequestRecalibration forces a recalibration on the next frame.
func (p *Pipeline) RequestRecalibration() {
	p.scheduler.RequestRecalibration()
}

// ProcessFrame runs one frame through every stage. Stage failures are
// logged and the frame carries on with what is available; only an empty
// frame or a cancelled context is returned as an error.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame gocv.Mat) (*FrameResult, error) {
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := p.clock.Now()
	index := p.frame
	p.frame++

	resized := p.resize(frame)
	defer resized.Close()

	calibrated, err := p.scheduler.Step(resized)
	if err != nil {
		if errors.Is(err, chart.ErrChartNotFound) {
			monitoring.Diagf("[pipeline] frame %d: %v", index, err)
		} else {
			monitoring.Opsf("[pipeline] frame %d: calibration failed: %v", index, err)
		}
	}

	corrected, err := colorcal.CorrectFrame(resized, p.scheduler.Model())
	if err != nil {
		monitoring.Opsf("[pipeline] frame %d: correction skipped: %v", index, err)
		corrected = resized.Clone()
	}

	dets, err := p.source.Detections(ctx, index)
	if err != nil {
		if ctx.Err() != nil {
			corrected.Close()
			return nil, ctx.Err()
		}
		monitoring.Opsf("[pipeline] frame %d: detections unavailable: %v", index, err)
		dets = nil
	}
	dets = p.mask.Filter(dets)

	objects := p.tracker.Update(dets)
	p.classify(corrected, objects, now)
	events := p.detector.Check(objects, now)

	for _, ev := range events {
		p.aggregator.Add(ev)
		monitoring.Opsf("[pipeline] crossing: id=%d label=%s direction=%s elapsed=%s",
			ev.ID, ev.Label, ev.Direction, ev.Elapsed.Truncate(time.Second))
		for _, sink := range p.sinks {
			if err := sink.Publish(ctx, ev); err != nil {
				monitoring.Opsf("[pipeline] sink %T failed for crossing %d: %v", sink, ev.ID, err)
			}
		}
	}

	p.publishSnapshot(index, events)
	return &FrameResult{Index: index, Corrected: corrected, Events: events, Calibrated: calibrated}, nil
}

func (p *Pipeline) resize(frame gocv.Mat) gocv.Mat {
	if frame.Cols() == p.width && frame.Rows() == p.height {
		return frame.Clone()
	}
	out := gocv.NewMat()
	gocv.Resize(frame, &out, image.Pt(p.width, p.height), 0, 0, gocv.InterpolationLinear)
	return out
}

// classify votes for every object observed this frame.
func (p *Pipeline) classify(frame gocv.Mat, objects []*tracking.TrackedObject, now time.Time) {
	if p.classifier == nil {
		return
	}
	for _, obj := range objects {
		if obj.Disappeared > 0 || obj.Crossed {
			continue
		}
		label, err := p.classifier.Classify(frame, obj.BBox, now)
		if err != nil {
			monitoring.Diagf("[pipeline] classify object %d: %v", obj.ID, err)
			continue
		}
		p.voter.Vote(obj, label, now)
	}
}

func (p *Pipeline) publishSnapshot(index int64, events []counting.CrossingEvent) {
	objects := p.tracker.Active()
	tracks := make([]TrackSnapshot, len(objects))
	for i, obj := range objects {
		tracks[i] = TrackSnapshot{
			ID:         obj.ID,
			State:      obj.State,
			BBox:       obj.BBox,
			Trajectory: obj.Trajectory,
			Label:      obj.DominantLabel(),
			Votes:      len(obj.Votes),
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = tracks
	p.recent = append(p.recent, events...)
	if n := len(p.recent); n > recentCrossingsKept {
		p.recent = append([]counting.CrossingEvent(nil), p.recent[n-recentCrossingsKept:]...)
	}
	p.status.Frames = index + 1
	p.status.Calibrated = p.scheduler.Model() != nil
	p.status.LastCalibrated = p.scheduler.LastCalibrated()
	p.status.Tracked = len(tracks)
	p.status.Crossings = p.aggregator.Total()
}

// ActiveObjects returns the objects tracked after the last frame.
func (p *Pipeline) ActiveObjects() []TrackSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]TrackSnapshot(nil), p.tracks...)
}

// RecentCrossings returns up to the last 100 crossings, oldest first.
func (p *Pipeline) RecentCrossings() []counting.CrossingEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]counting.CrossingEvent(nil), p.recent...)
}

// Status returns the run summary.
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Totals returns the per-label counts.
func (p *Pipeline) Totals() map[string]int {
	return p.aggregator.Totals()
}

func (p *Pipeline) setRunning(running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Running = running
}
