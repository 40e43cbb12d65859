// Package counting detects counting-line crossings and keeps the per-label
// tallies.
package counting

import (
	"time"
)

// Directions of travel across the line. Up means the reference point moved
// towards the top of the frame.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// UnknownLabel is recorded for a crossing by an object with no votes.
const UnknownLabel = "inconnu"

// CrossingEvent records one object crossing the counting line.
type CrossingEvent struct {
	RunID     string        `json:"run_id"`
	ID        int64         `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Elapsed   time.Duration `json:"elapsed"`
	Label     string        `json:"label"`
	Direction string        `json:"direction"`
}
