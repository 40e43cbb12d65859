package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	now := c.Now()
	assert.False(t, now.Before(before))
	assert.GreaterOrEqual(t, c.Since(before), time.Duration(0))
}

func TestMockClock(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())
	assert.Equal(t, 90*time.Second, c.Since(start))

	later := start.Add(time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestStreamClock(t *testing.T) {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c := NewStreamClock(base)

	assert.Equal(t, base, c.Now())

	c.SetPosition(2500 * time.Millisecond)
	assert.Equal(t, base.Add(2500*time.Millisecond), c.Now())
	assert.Equal(t, 2500*time.Millisecond, c.Position())

	// A seek backwards does not rewind the clock.
	c.SetPosition(time.Second)
	assert.Equal(t, 2500*time.Millisecond, c.Position())
	assert.Equal(t, 2500*time.Millisecond, c.Since(base))
}
