// Package scoreboard drives a serial LED scoreboard showing the running
// per-label totals.
package scoreboard

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/banshee-data/finishline/internal/counting"
)

// Scoreboard writes one line of totals per crossing. The line format is
// label=count pairs joined by ';', in label order, terminated by "\r\n".
type Scoreboard struct {
	mu     sync.Mutex
	w      io.Writer
	totals func() map[string]int
}

// New returns a Scoreboard writing to w. totals is read after each crossing
// has been aggregated.
func New(w io.Writer, totals func() map[string]int) *Scoreboard {
	return &Scoreboard{w: w, totals: totals}
}

// FormatLine renders totals in the wire format.
func FormatLine(totals map[string]int) string {
	labels := make([]string, 0, len(totals))
	for label := range totals {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	parts := make([]string, len(labels))
	for i, label := range labels {
		parts[i] = fmt.Sprintf("%s=%d", label, totals[label])
	}
	return strings.Join(parts, ";") + "\r\n"
}

// Publish refreshes the display. The event itself is not shown.
func (s *Scoreboard) Publish(ctx context.Context, _ counting.CrossingEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line := FormatLine(s.totals())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, line); err != nil {
		return fmt.Errorf("write scoreboard: %w", err)
	}
	return nil
}

// Close closes the underlying writer if it is closable.
func (s *Scoreboard) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
