package colorcal

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"gocv.io/x/gocv"
)

// minParallelPixels is the frame size below which correction runs on the
// calling goroutine.
const minParallelPixels = 1 << 16

// CorrectPixels applies m to packed 8-bit BGR pixels and returns a new
// slice. Each channel is normalised to [0,1], mapped, clipped to [0,1],
// scaled by 255 and truncated. A nil model returns an unmodified copy.
func CorrectPixels(pix []byte, m *Model) []byte {
	out := make([]byte, len(pix))
	if m == nil {
		copy(out, pix)
		return out
	}

	n := len(pix) / 3
	workers := runtime.GOMAXPROCS(0)
	if n < minParallelPixels || workers < 2 {
		correctRange(pix, out, m, 0, n)
		return out
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			correctRange(pix, out, m, start, end)
		}(start, end)
	}
	wg.Wait()
	return out
}

func correctRange(pix, out []byte, m *Model, start, end int) {
	for i := start; i < end; i++ {
		o := i * 3
		b, g, r := m.Apply(float64(pix[o])/255, float64(pix[o+1])/255, float64(pix[o+2])/255)
		out[o] = toByte(b)
		out[o+1] = toByte(g)
		out[o+2] = toByte(r)
	}
}

func toByte(v float64) byte {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v * 255)
}

// CorrectFrame applies m to an 8-bit BGR frame and returns a new Mat owned
// by the caller. A nil model returns a clone of frame.
func CorrectFrame(frame gocv.Mat, m *Model) (gocv.Mat, error) {
	if m == nil {
		return frame.Clone(), nil
	}
	if frame.Type() != gocv.MatTypeCV8UC3 {
		return gocv.NewMat(), fmt.Errorf("colour correction needs an 8-bit BGR frame, got type %v", frame.Type())
	}
	corrected := CorrectPixels(frame.ToBytes(), m)
	out, err := gocv.NewMatFromBytes(frame.Rows(), frame.Cols(), gocv.MatTypeCV8UC3, corrected)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to build corrected frame: %w", err)
	}
	return out, nil
}
