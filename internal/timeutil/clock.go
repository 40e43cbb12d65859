// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// StreamClock reports time as a fixed base plus the position within a video
// stream, so recorded footage replayed faster than real time still yields
// the timestamps the scene was filmed at.
type StreamClock struct {
	mu     sync.Mutex
	base   time.Time
	offset time.Duration
}

// NewStreamClock creates a StreamClock anchored at base.
func NewStreamClock(base time.Time) *StreamClock {
	return &StreamClock{base: base}
}

// SetPosition records the current stream position. Positions that move
// backwards are ignored so Now never decreases.
func (c *StreamClock) SetPosition(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > c.offset {
		c.offset = d
	}
}

// Position returns the last recorded stream position.
func (c *StreamClock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// Now returns base plus the stream position.
func (c *StreamClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.Add(c.offset)
}

// Since returns the duration since t.
func (c *StreamClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// MockClock is a manually controlled clock for testing.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set sets the mock clock to a specific time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the mock clock forward by the given duration.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

var (
	_ Clock = RealClock{}
	_ Clock = (*StreamClock)(nil)
	_ Clock = (*MockClock)(nil)
)
