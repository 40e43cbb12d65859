// Package detection adapts the external person detector to the tracker.
package detection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"github.com/banshee-data/finishline/internal/geom"
	"github.com/banshee-data/finishline/internal/monitoring"
	"github.com/banshee-data/finishline/internal/tracking"
)

// maxLineBytes bounds a single detector record.
const maxLineBytes = 4 << 20

// Source yields the detections for a frame, by zero-based frame index.
type Source interface {
	Detections(ctx context.Context, frame int64) ([]tracking.Detection, error)
}

// JSONLinesSource reads detector output written as one JSON object per
// frame:
//
//	{"frame":12,"items":[{"bbox":[x1,y1,x2,y2],"confidence":0.91,"track_id":4}]}
//
// Records must be in ascending frame order. Frames with no record have no
// detections; track_id is optional.
type JSONLinesSource struct {
	scanner       *bufio.Scanner
	minConfidence float64

	pending *record
	done    bool
	line    int
}

type record struct {
	frame int64
	dets  []tracking.Detection
}

// NewJSONLinesSource reads records from r and drops detections below
// minConfidence.
func NewJSONLinesSource(r io.Reader, minConfidence float64) *JSONLinesSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &JSONLinesSource{scanner: sc, minConfidence: minConfidence}
}

// Detections returns the detections recorded for frame. Records for earlier
// frames that were never asked for are skipped.
func (s *JSONLinesSource) Detections(ctx context.Context, frame int64) ([]tracking.Detection, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.pending == nil {
			rec, err := s.next()
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			s.pending = rec
		}

		switch {
		case s.pending.frame == frame:
			rec := s.pending
			s.pending = nil
			return rec.dets, nil
		case s.pending.frame > frame:
			return nil, nil
		default:
			s.pending = nil
		}
	}
}

func (s *JSONLinesSource) next() (*record, error) {
	for !s.done {
		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("failed to read detections: %w", err)
			}
			break
		}
		s.line++
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := parseRecord(line, s.minConfidence)
		if err != nil {
			monitoring.Opsf("[detection] skipping line %d: %v", s.line, err)
			continue
		}
		return rec, nil
	}
	return nil, io.EOF
}

// parseRecord parses one detector line.
func parseRecord(line []byte, minConfidence float64) (*record, error) {
	if !gjson.ValidBytes(line) {
		return nil, errors.New("invalid JSON")
	}
	doc := gjson.ParseBytes(line)
	frame := doc.Get("frame")
	if !frame.Exists() {
		return nil, errors.New("missing frame")
	}

	rec := &record{frame: frame.Int()}
	var parseErr error
	doc.Get("items").ForEach(func(_, item gjson.Result) bool {
		det, err := parseItem(item)
		if err != nil {
			parseErr = err
			return false
		}
		if det.Confidence >= minConfidence {
			rec.dets = append(rec.dets, det)
		}
		return true
	})
	if parseErr != nil {
		return nil, fmt.Errorf("frame %d: %w", rec.frame, parseErr)
	}
	return rec, nil
}

func parseItem(item gjson.Result) (tracking.Detection, error) {
	bbox := item.Get("bbox").Array()
	if len(bbox) != 4 {
		return tracking.Detection{}, fmt.Errorf("bbox must have 4 values, got %d", len(bbox))
	}
	det := tracking.Detection{
		BBox: geom.BBox{
			X1: bbox[0].Float(),
			Y1: bbox[1].Float(),
			X2: bbox[2].Float(),
			Y2: bbox[3].Float(),
		},
		Confidence: item.Get("confidence").Float(),
		ExternalID: tracking.NoExternalID,
	}
	if id := item.Get("track_id"); id.Exists() && id.Type == gjson.Number {
		det.ExternalID = int(id.Int())
	}
	if det.BBox.Width() <= 0 || det.BBox.Height() <= 0 {
		return tracking.Detection{}, fmt.Errorf("degenerate bbox %v", det.BBox)
	}
	return det, nil
}
