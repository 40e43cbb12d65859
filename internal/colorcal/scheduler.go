package colorcal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/finishline/internal/chart"
	"github.com/banshee-data/finishline/internal/config"
	"github.com/banshee-data/finishline/internal/monitoring"
	"github.com/banshee-data/finishline/internal/timeutil"
)

// CachedImageName is the file the normalised chart is written to inside the
// cache directory.
const CachedImageName = "chart_normalized.png"

var errNoCache = errors.New("no cached chart")

// CachedChart is the persisted result of a chart detection: where the
// patches are on the normalised chart, and a copy of that chart.
type CachedChart struct {
	Patches     []chart.Patch
	ImagePath   string
	Fingerprint chart.Fingerprint
	SavedAt     time.Time
}

// ChartCache persists the last detected chart. Load returns (nil, nil)
// when nothing has been saved.
type ChartCache interface {
	Load() (*CachedChart, error)
	Save(CachedChart) error
}

// Scheduler decides when to recalibrate and owns the current model. It is
// driven from the frame goroutine; only RequestRecalibration is safe to call
// from elsewhere.
type Scheduler struct {
	interval    int
	detectChart bool
	tolerance   float64
	cacheDir    string
	detector    chart.Detector
	reference   []chart.BGR
	cache       ChartCache
	clock       timeutil.Clock

	// acquire measures the chart colours in a frame.
	acquire func(gocv.Mat) ([]chart.BGR, error)

	frames  int
	model   *Model
	lastFit time.Time
	force   atomic.Bool
}

// NewScheduler creates a Scheduler from the tuning config. cache may be nil,
// in which case the chart is detected on every recalibration. The normalised
// chart image is written to cacheDir.
func NewScheduler(cfg *config.TuningConfig, cache ChartCache, cacheDir string, clock timeutil.Clock) *Scheduler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Scheduler{
		interval:    cfg.GetCalibrationInterval(),
		detectChart: cfg.GetDetectChart(),
		tolerance:   cfg.GetFingerprintTolerance(),
		cacheDir:    cacheDir,
		detector:    chart.DetectorFromTuning(cfg),
		reference:   chart.ReferenceColors,
		cache:       cache,
		clock:       clock,
	}
	s.acquire = s.measureChart
	return s
}

// RequestRecalibration forces a recalibration on the next frame.
func (s *Scheduler) RequestRecalibration() {
	s.force.Store(true)
}

// Model returns the current model, or nil before the first successful fit.
func (s *Scheduler) Model() *Model {
	return s.model
}

// Frames returns the number of frames seen.
func (s *Scheduler) Frames() int {
	return s.frames
}

// LastCalibrated returns when the current model was fitted.
func (s *Scheduler) LastCalibrated() time.Time {
	return s.lastFit
}

// Step counts a frame and recalibrates when the interval has elapsed, when
// no model exists yet, or when a recalibration was requested. It reports
// whether a new model was fitted. On failure the previous model is kept.
func (s *Scheduler) Step(frame gocv.Mat) (bool, error) {
	s.frames++
	forced := s.force.Swap(false)
	if !forced && s.model != nil && s.frames%s.interval != 0 {
		return false, nil
	}

	measured, err := s.acquire(frame)
	if err != nil {
		return false, fmt.Errorf("chart acquisition failed: %w", err)
	}
	m, err := Fit(measured, s.reference)
	if err != nil {
		return false, err
	}

	s.model = &m
	s.lastFit = s.clock.Now()
	monitoring.Opsf("[calibration] recalibrated at frame %d (forced=%v) gamma=[%.3f %.3f %.3f]",
		s.frames, forced, m.Gamma(0), m.Gamma(1), m.Gamma(2))
	return true, nil
}

// measureChart returns the chart colours, from the cache when detection is
// disabled and the cache is usable, otherwise from a fresh detection.
func (s *Scheduler) measureChart(frame gocv.Mat) ([]chart.BGR, error) {
	if !s.detectChart && s.cache != nil {
		colors, err := s.fromCache(frame)
		if err == nil {
			return colors, nil
		}
		monitoring.Diagf("[calibration] chart cache miss: %v", err)
	}

	obs, err := s.detector.Detect(frame)
	if err != nil {
		return nil, err
	}
	defer obs.Close()

	colors, err := chart.SampleColors(obs.Normalized, obs.Patches)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.cacheDir != "" {
		if err := s.saveCache(obs); err != nil {
			monitoring.Opsf("[calibration] failed to cache chart: %v", err)
		}
	}
	return colors, nil
}

func (s *Scheduler) fromCache(frame gocv.Mat) ([]chart.BGR, error) {
	entry, err := s.cache.Load()
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errNoCache
	}

	img := gocv.IMRead(entry.ImagePath, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("cached chart image %q is unreadable", entry.ImagePath)
	}

	// A chart visible in the live frame must still look like the cached one.
	if len(entry.Fingerprint) > 0 {
		_, live, err := s.detector.Locate(frame)
		if err == nil {
			fp, ferr := chart.FingerprintMat(live)
			if ferr == nil {
				if d := fp.Distance(entry.Fingerprint); d > s.tolerance {
					live.Close()
					return nil, fmt.Errorf("live chart differs from cached chart (distance %.3f > %.3f)", d, s.tolerance)
				}
			}
		}
		live.Close()
	}

	return chart.SampleColors(img, entry.Patches)
}

func (s *Scheduler) saveCache(obs *chart.Observation) error {
	if err := os.MkdirAll(s.cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	path := filepath.Join(s.cacheDir, CachedImageName)
	if ok := gocv.IMWrite(path, obs.Normalized); !ok {
		return fmt.Errorf("failed to write chart image %s", path)
	}
	fp, err := chart.FingerprintMat(obs.Normalized)
	if err != nil {
		return err
	}
	return s.cache.Save(CachedChart{
		Patches:     obs.Patches,
		ImagePath:   path,
		Fingerprint: fp,
		SavedAt:     s.clock.Now(),
	})
}
