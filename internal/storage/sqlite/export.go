package sqlite

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{"timestamp", "elapsed", "id", "label", "direction"}

// ExportCSV writes the crossings of runID (all runs when empty) as CSV.
func (s *CrossingStore) ExportCSV(w io.Writer, runID string) error {
	events, err := s.List(CrossingFilter{RunID: runID})
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, ev := range events {
		row := []string{
			ev.Timestamp.UTC().Format(time.RFC3339),
			FormatElapsed(ev.Elapsed),
			strconv.FormatInt(ev.ID, 10),
			ev.Label,
			ev.Direction,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatElapsed renders d as mm:ss. Minutes keep counting past 59.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
