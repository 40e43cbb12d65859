package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/finishline/internal/counting"
)

// CrossingFilter narrows List. Zero fields do not filter.
type CrossingFilter struct {
	RunID string
	Label string
	Since time.Time
	Limit int
}

// CrossingStore is the append-only log of counted crossings.
type CrossingStore struct {
	db *DB
}

func NewCrossingStore(db *DB) *CrossingStore {
	return &CrossingStore{db: db}
}

// Insert appends ev to the log.
func (s *CrossingStore) Insert(ev counting.CrossingEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO crossings (run_id, object_id, label, direction, ts_unix_nanos, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.ID, ev.Label, ev.Direction, ev.Timestamp.UnixNano(), ev.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert crossing %d: %w", ev.ID, err)
	}
	return nil
}

// Publish stores ev, letting the store act as a crossing sink.
func (s *CrossingStore) Publish(_ context.Context, ev counting.CrossingEvent) error {
	return s.Insert(ev)
}

// List returns matching crossings oldest first.
func (s *CrossingStore) List(f CrossingFilter) ([]counting.CrossingEvent, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Label != "" {
		where = append(where, "label = ?")
		args = append(args, f.Label)
	}
	if !f.Since.IsZero() {
		where = append(where, "ts_unix_nanos >= ?")
		args = append(args, f.Since.UnixNano())
	}

	query := `SELECT run_id, object_id, label, direction, ts_unix_nanos, elapsed_ms FROM crossings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_unix_nanos ASC, crossing_id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query crossings: %w", err)
	}
	defer rows.Close()

	var events []counting.CrossingEvent
	for rows.Next() {
		var (
			ev        counting.CrossingEvent
			tsNanos   int64
			elapsedMs int64
		)
		if err := rows.Scan(&ev.RunID, &ev.ID, &ev.Label, &ev.Direction, &tsNanos, &elapsedMs); err != nil {
			return nil, fmt.Errorf("scan crossing row: %w", err)
		}
		ev.Timestamp = time.Unix(0, tsNanos)
		ev.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MaxObjectID returns the highest object ID logged for runID, or 0 when the
// run has no crossings.
func (s *CrossingStore) MaxObjectID(runID string) (int64, error) {
	var id sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(object_id) FROM crossings WHERE run_id = ?`, runID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("max object id: %w", err)
	}
	return id.Int64, nil
}

// CountsByLabel returns the number of crossings per label for a run. An
// empty runID counts every run.
func (s *CrossingStore) CountsByLabel(runID string) (map[string]int, error) {
	query := `SELECT label, COUNT(*) FROM crossings`
	var args []interface{}
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` GROUP BY label`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("count crossings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[label] = n
	}
	return counts, rows.Err()
}
