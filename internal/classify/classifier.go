package classify

import (
	"fmt"
	"io"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/finishline/internal/config"
	"github.com/banshee-data/finishline/internal/geom"
)

// Classifier labels the person inside bbox. An empty label means no usable
// sample this frame.
type Classifier interface {
	Classify(frame gocv.Mat, bbox geom.BBox, now time.Time) (string, error)
}

// Classify implements Classifier.
func (r *NumberReader) Classify(frame gocv.Mat, bbox geom.BBox, _ time.Time) (string, error) {
	return r.Read(frame, bbox)
}

// Close is a no-op.
func (c *ShirtClassifier) Close() error { return nil }

// ClassifierCloser is a Classifier holding resources.
type ClassifierCloser interface {
	Classifier
	io.Closer
}

// NewClassifierFromTuning returns the classifier selected by
// classification_mode. The caller must Close it.
func NewClassifierFromTuning(cfg *config.TuningConfig, w *TemporalWeighting) (ClassifierCloser, error) {
	switch mode := cfg.GetClassificationMode(); mode {
	case config.ModeColor:
		return NewShirtClassifier(cfg, w), nil
	case config.ModeNumber:
		r, err := NewNumberReader(cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown classification mode %q", mode)
	}
}
