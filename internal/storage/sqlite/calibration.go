package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/finishline/internal/chart"
	"github.com/banshee-data/finishline/internal/colorcal"
)

// ErrCacheCorrupt is returned by Load when the stored entry cannot be used.
var ErrCacheCorrupt = errors.New("calibration cache corrupt")

// CalibrationStore keeps the most recent chart detection so calibration can
// run without redetecting the chart.
type CalibrationStore struct {
	db *DB
}

var _ colorcal.ChartCache = (*CalibrationStore)(nil)

func NewCalibrationStore(db *DB) *CalibrationStore {
	return &CalibrationStore{db: db}
}

func (s *CalibrationStore) Save(c colorcal.CachedChart) error {
	patches, err := json.Marshal(c.Patches)
	if err != nil {
		return fmt.Errorf("encode patches: %w", err)
	}
	var fingerprint interface{}
	if len(c.Fingerprint) > 0 {
		b, err := json.Marshal(c.Fingerprint)
		if err != nil {
			return fmt.Errorf("encode fingerprint: %w", err)
		}
		fingerprint = string(b)
	}
	savedAt := c.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO calibration_cache (patches_json, image_path, fingerprint_json, saved_unix_nanos)
		VALUES (?, ?, ?, ?)`,
		string(patches), c.ImagePath, fingerprint, savedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert calibration cache: %w", err)
	}
	return nil
}

// Load returns the latest entry, or (nil, nil) if none has been saved.
func (s *CalibrationStore) Load() (*colorcal.CachedChart, error) {
	var (
		patchesJSON     string
		imagePath       string
		fingerprintJSON sql.NullString
		savedNanos      int64
	)
	err := s.db.QueryRow(`
		SELECT patches_json, image_path, fingerprint_json, saved_unix_nanos
		FROM calibration_cache
		ORDER BY cache_id DESC
		LIMIT 1`).Scan(&patchesJSON, &imagePath, &fingerprintJSON, &savedNanos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query calibration cache: %w", err)
	}

	c := &colorcal.CachedChart{ImagePath: imagePath, SavedAt: time.Unix(0, savedNanos)}
	if err := json.Unmarshal([]byte(patchesJSON), &c.Patches); err != nil {
		return nil, fmt.Errorf("%w: patches: %v", ErrCacheCorrupt, err)
	}
	if len(c.Patches) == 0 {
		return nil, fmt.Errorf("%w: no patches", ErrCacheCorrupt)
	}
	if imagePath == "" {
		return nil, fmt.Errorf("%w: missing image path", ErrCacheCorrupt)
	}
	if fingerprintJSON.Valid && fingerprintJSON.String != "" {
		var fp chart.Fingerprint
		if err := json.Unmarshal([]byte(fingerprintJSON.String), &fp); err != nil {
			return nil, fmt.Errorf("%w: fingerprint: %v", ErrCacheCorrupt, err)
		}
		c.Fingerprint = fp
	}
	return c, nil
}
