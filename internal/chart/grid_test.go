package chart

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// layoutGrid returns a rows×cols grid of 40×30 patches with 10px gaps, in
// shuffled order so tests exercise the sort.
func layoutGrid(rows, cols int) []Patch {
	var out []Patch
	for r := rows - 1; r >= 0; r-- {
		for c := 0; c < cols; c++ {
			col := (c*5 + 3) % cols
			out = append(out, Patch{X: 10 + col*50, Y: 10 + r*40, W: 40, H: 30})
		}
	}
	return out
}

func TestGroupRows(t *testing.T) {
	patches := []Patch{
		{X: 100, Y: 12, W: 10, H: 10},
		{X: 10, Y: 10, W: 10, H: 10},
		{X: 50, Y: 61, W: 10, H: 10},
		{X: 10, Y: 60, W: 10, H: 10},
		{X: 55, Y: 8, W: 10, H: 10},
	}

	rows := GroupRows(patches, 20)
	want := [][]Patch{
		{{X: 10, Y: 10, W: 10, H: 10}, {X: 55, Y: 8, W: 10, H: 10}, {X: 100, Y: 12, W: 10, H: 10}},
		{{X: 10, Y: 60, W: 10, H: 10}, {X: 50, Y: 61, W: 10, H: 10}},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("GroupRows mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupRows_Empty(t *testing.T) {
	assert.Empty(t, GroupRows(nil, 20))
}

func TestFillRow_SynthesisesMissingColumn(t *testing.T) {
	row := []Patch{
		{X: 10, Y: 100, W: 40, H: 30},
		{X: 60, Y: 101, W: 40, H: 30},
		{X: 160, Y: 99, W: 40, H: 30},
		{X: 210, Y: 100, W: 40, H: 30},
		{X: 260, Y: 100, W: 40, H: 30},
	}

	filled := FillRow(row, 6)
	require.Len(t, filled, 6)
	assert.Equal(t, Patch{X: 110, Y: 100, W: 40, H: 30}, filled[2])
	for i := 1; i < len(filled); i++ {
		assert.Less(t, filled[i-1].X, filled[i].X)
	}
}

func TestFillRow_FullRowUnchanged(t *testing.T) {
	row := []Patch{{X: 0, Y: 0, W: 5, H: 5}, {X: 10, Y: 0, W: 5, H: 5}}
	assert.Equal(t, row, FillRow(row, 2))
}

func TestRepairGrid_FullGridReversed(t *testing.T) {
	got, err := RepairGrid(layoutGrid(4, 6), DefaultGridSpec())
	require.NoError(t, err)
	require.Len(t, got, 24)

	// Row-major order reversed: bottom-right first, top-left last.
	assert.Equal(t, Patch{X: 260, Y: 130, W: 40, H: 30}, got[0])
	assert.Equal(t, Patch{X: 210, Y: 130, W: 40, H: 30}, got[1])
	assert.Equal(t, Patch{X: 10, Y: 10, W: 40, H: 30}, got[23])
	assert.Equal(t, Patch{X: 260, Y: 10, W: 40, H: 30}, got[18])
}

func TestRepairGrid_FillsOneMissingPatch(t *testing.T) {
	patches := layoutGrid(4, 6)
	var dropped []Patch
	for _, p := range patches {
		if p.X == 110 && p.Y == 50 {
			continue
		}
		dropped = append(dropped, p)
	}
	require.Len(t, dropped, 23)

	got, err := RepairGrid(dropped, DefaultGridSpec())
	require.NoError(t, err)
	require.Len(t, got, 24)
	assert.Contains(t, got, Patch{X: 110, Y: 50, W: 40, H: 30})
}

func TestRepairGrid_MissingRow(t *testing.T) {
	_, err := RepairGrid(layoutGrid(3, 6), DefaultGridSpec())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPatchCountMismatch))
}

func TestRepairGrid_TooManyPatches(t *testing.T) {
	patches := append(layoutGrid(4, 6), Patch{X: 400, Y: 10, W: 40, H: 30})
	_, err := RepairGrid(patches, DefaultGridSpec())
	assert.ErrorIs(t, err, ErrPatchCountMismatch)
}

func TestPatchInset(t *testing.T) {
	p := Patch{X: 10, Y: 20, W: 60, H: 55}
	assert.Equal(t, Patch{X: 15, Y: 40, W: 50, H: 15}, p.Inset(5, 20))
}

func TestInsetPatches_DropsPatchesTooSmallForMargins(t *testing.T) {
	patches := []Patch{
		{X: 10, Y: 40, W: 40, H: 30},
		{X: 60, Y: 40, W: 40, H: 55},
	}
	got := InsetPatches(patches, 5, 20)
	assert.Equal(t, []Patch{{X: 65, Y: 60, W: 30, H: 15}}, got)
}

func TestRepairGrid_ShortPatchesFailCount(t *testing.T) {
	// 30px-tall patches have no height left after a 20px inset.
	_, err := RepairGrid(InsetPatches(layoutGrid(4, 6), 5, 20), DefaultGridSpec())
	assert.ErrorIs(t, err, ErrPatchCountMismatch)
}

func TestPatchEmpty(t *testing.T) {
	assert.False(t, Patch{W: 1, H: 1}.Empty())
	assert.True(t, Patch{W: 30, H: -10}.Empty())
	assert.True(t, Patch{W: 0, H: 10}.Empty())
}
