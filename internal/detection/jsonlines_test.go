package detection

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/finishline/internal/geom"
	"github.com/banshee-data/finishline/internal/tracking"
)

const stream = `{"frame":0,"items":[{"bbox":[10,20,50,120],"confidence":0.9,"track_id":4},{"bbox":[300,20,340,120],"confidence":0.3}]}
{"frame":2,"items":[{"bbox":[12,25,52,125],"confidence":0.8}]}

not json
{"frame":3,"items":[]}
{"frame":5,"items":[{"bbox":[1,2,3],"confidence":0.9}]}
{"frame":6,"items":[{"bbox":[100,100,140,200],"confidence":0.5,"track_id":9}]}
`

func TestJSONLinesSource(t *testing.T) {
	src := NewJSONLinesSource(strings.NewReader(stream), 0.5)
	ctx := context.Background()

	dets, err := src.Detections(ctx, 0)
	require.NoError(t, err)
	require.Len(t, dets, 1, "low-confidence item dropped")
	assert.Equal(t, tracking.Detection{
		BBox:       geom.BBox{X1: 10, Y1: 20, X2: 50, Y2: 120},
		Confidence: 0.9,
		ExternalID: 4,
	}, dets[0])

	// Frame 1 has no record.
	dets, err = src.Detections(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, dets)

	dets, err = src.Detections(ctx, 2)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, tracking.NoExternalID, dets[0].ExternalID)

	dets, err = src.Detections(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, dets)

	// The malformed frame 5 record is skipped entirely.
	dets, err = src.Detections(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, dets)

	dets, err = src.Detections(ctx, 6)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 9, dets[0].ExternalID)

	// Past the end of the stream.
	dets, err = src.Detections(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestJSONLinesSource_SkipsUnrequestedFrames(t *testing.T) {
	src := NewJSONLinesSource(strings.NewReader(stream), 0)

	dets, err := src.Detections(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 12.0, dets[0].BBox.X1)
}

func TestJSONLinesSource_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewJSONLinesSource(strings.NewReader(stream), 0.5)
	_, err := src.Detections(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseRecord_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"invalid", `{"frame":`, "invalid JSON"},
		{"no frame", `{"items":[]}`, "missing frame"},
		{"short bbox", `{"frame":1,"items":[{"bbox":[1,2,3]}]}`, "4 values"},
		{"inverted bbox", `{"frame":1,"items":[{"bbox":[50,50,10,10],"confidence":1}]}`, "degenerate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRecord([]byte(tt.line), 0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
