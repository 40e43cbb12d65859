package colorcal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func biasModel(bias float64) *Model {
	var m Model
	for ch := 0; ch < 3; ch++ {
		m[ch*5+3] = bias
		m[ch*5+4] = 1
	}
	return &m
}

func TestCorrectPixels_NilModelCopies(t *testing.T) {
	pix := []byte{1, 2, 3, 250, 251, 252}
	out := CorrectPixels(pix, nil)
	assert.Equal(t, pix, out)

	out[0] = 99
	assert.Equal(t, byte(1), pix[0])
}

func TestCorrectPixels_Identity(t *testing.T) {
	pix := make([]byte, 256*3)
	for i := range pix {
		pix[i] = byte(i / 3)
	}
	id := Identity()
	out := CorrectPixels(pix, &id)
	for i := range pix {
		assert.InDelta(t, int(pix[i]), int(out[i]), 1, "byte %d", i)
	}
}

func TestCorrectPixels_ClipsAndTruncates(t *testing.T) {
	pix := []byte{0, 128, 255}

	assert.Equal(t, []byte{127, 127, 127}, CorrectPixels(pix, biasModel(0.5)))
	assert.Equal(t, []byte{255, 255, 255}, CorrectPixels(pix, biasModel(2)))
	assert.Equal(t, []byte{0, 0, 0}, CorrectPixels(pix, biasModel(-1)))
}

func TestCorrectPixels_ParallelMatchesSerial(t *testing.T) {
	n := minParallelPixels * 2
	pix := make([]byte, n*3)
	for i := range pix {
		pix[i] = byte(i * 7)
	}
	m := Identity()
	m[4], m[9], m[14] = 0.8, 1.2, 2.0

	got := CorrectPixels(pix, &m)
	want := make([]byte, len(pix))
	correctRange(pix, want, &m, 0, n)
	assert.Equal(t, want, got)
}

func TestCorrectFrame(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 100, 200, 0), 4, 6, gocv.MatTypeCV8UC3)
	defer frame.Close()

	out, err := CorrectFrame(frame, biasModel(0.5))
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 4, out.Rows())
	assert.Equal(t, 6, out.Cols())
	v := out.GetVecbAt(2, 3)
	assert.Equal(t, []uint8{127, 127, 127}, []uint8(v))

	// Source is untouched.
	assert.Equal(t, uint8(10), frame.GetVecbAt(2, 3)[0])
}

func TestCorrectFrame_NilModelClones(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 2, 3, 0), 2, 2, gocv.MatTypeCV8UC3)
	defer frame.Close()

	out, err := CorrectFrame(frame, nil)
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, frame.ToBytes(), out.ToBytes())
}

func TestCorrectFrame_RejectsGray(t *testing.T) {
	gray := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8U)
	defer gray.Close()

	out, err := CorrectFrame(gray, biasModel(0.5))
	defer out.Close()
	assert.Error(t, err)
}
