package colorcal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/banshee-data/finishline/internal/chart"
	"github.com/banshee-data/finishline/internal/config"
	"github.com/banshee-data/finishline/internal/timeutil"
)

type stubAcquirer struct {
	calls int
	err   error
}

func (s *stubAcquirer) acquire(gocv.Mat) ([]chart.BGR, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return chart.ReferenceColors, nil
}

func newTestScheduler(t *testing.T, interval int) (*Scheduler, *stubAcquirer) {
	t.Helper()
	cfg := &config.TuningConfig{CalibrationInterval: &interval}
	clock := timeutil.NewMockClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	s := NewScheduler(cfg, nil, "", clock)
	stub := &stubAcquirer{}
	s.acquire = stub.acquire
	return s, stub
}

func TestScheduler_Interval(t *testing.T) {
	s, stub := newTestScheduler(t, 3)
	frame := gocv.NewMat()
	defer frame.Close()

	var fitted []int
	for i := 1; i <= 7; i++ {
		ok, err := s.Step(frame)
		require.NoError(t, err)
		if ok {
			fitted = append(fitted, i)
		}
	}

	// Frame 1 has no model yet; 3 and 6 are on the interval.
	assert.Equal(t, []int{1, 3, 6}, fitted)
	assert.Equal(t, 3, stub.calls)
	assert.Equal(t, 7, s.Frames())
	require.NotNil(t, s.Model())
	assert.Equal(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), s.LastCalibrated())
}

func TestScheduler_RetriesUntilFirstModel(t *testing.T) {
	s, stub := newTestScheduler(t, 100)
	stub.err = chart.ErrChartNotFound
	frame := gocv.NewMat()
	defer frame.Close()

	for i := 0; i < 3; i++ {
		ok, err := s.Step(frame)
		assert.False(t, ok)
		assert.True(t, errors.Is(err, chart.ErrChartNotFound))
	}
	assert.Nil(t, s.Model())
	assert.Equal(t, 3, stub.calls)

	stub.err = nil
	ok, err := s.Step(frame)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, s.Model())
}

func TestScheduler_FailureKeepsPreviousModel(t *testing.T) {
	s, stub := newTestScheduler(t, 2)
	frame := gocv.NewMat()
	defer frame.Close()

	_, err := s.Step(frame)
	require.NoError(t, err)
	before := s.Model()
	require.NotNil(t, before)

	stub.err = chart.ErrPatchCountMismatch
	_, err = s.Step(frame)
	assert.ErrorIs(t, err, chart.ErrPatchCountMismatch)
	assert.Same(t, before, s.Model())
}

func TestScheduler_ForcedRecalibration(t *testing.T) {
	s, stub := newTestScheduler(t, 1000)
	frame := gocv.NewMat()
	defer frame.Close()

	_, err := s.Step(frame)
	require.NoError(t, err)
	ok, _ := s.Step(frame)
	assert.False(t, ok)

	s.RequestRecalibration()
	ok, err = s.Step(frame)
	require.NoError(t, err)
	assert.True(t, ok)

	// The request is consumed.
	ok, _ = s.Step(frame)
	assert.False(t, ok)
	assert.Equal(t, 2, stub.calls)
}

type memCache struct {
	entry *CachedChart
	err   error
	saves int
}

func (m *memCache) Load() (*CachedChart, error) { return m.entry, m.err }

func (m *memCache) Save(c CachedChart) error {
	m.saves++
	m.entry = &c
	return nil
}

func TestScheduler_UnreadableCacheFallsBackToDetection(t *testing.T) {
	interval := 10
	cfg := &config.TuningConfig{CalibrationInterval: &interval}
	cache := &memCache{entry: &CachedChart{
		Patches:   []chart.Patch{{X: 0, Y: 0, W: 5, H: 5}},
		ImagePath: filepath.Join(t.TempDir(), "missing.png"),
	}}
	s := NewScheduler(cfg, cache, "", nil)

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	// The cached image does not exist and the white frame has no chart.
	_, err := s.Step(frame)
	assert.ErrorIs(t, err, chart.ErrChartNotFound)
	assert.Nil(t, s.Model())
	assert.Zero(t, cache.saves)
}
