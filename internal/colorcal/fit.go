package colorcal

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/banshee-data/finishline/internal/chart"
	"github.com/banshee-data/finishline/internal/monitoring"
)

// gammaOffset is u such that gammaFromU(u) == 1.
var gammaOffset = func() float64 {
	p := (1 - MinGamma) / (MaxGamma - MinGamma)
	return math.Log(p / (1 - p))
}()

func gammaFromU(u float64) float64 {
	return MinGamma + (MaxGamma-MinGamma)/(1+math.Exp(-u))
}

func isGammaIndex(i int) bool {
	return i%paramsPerChannel == 4
}

// toModel maps an unconstrained optimiser vector onto a Model.
func toModel(x []float64) Model {
	var m Model
	for i := range m {
		if isGammaIndex(i) {
			m[i] = gammaFromU(x[i])
		} else {
			m[i] = x[i]
		}
	}
	return m
}

// startVector is the identity model in optimiser coordinates.
func startVector() []float64 {
	id := Identity()
	x := make([]float64, len(id))
	for i, v := range id {
		if isGammaIndex(i) {
			x[i] = gammaOffset
		} else {
			x[i] = v
		}
	}
	return x
}

// Fit finds the model that best maps measured chart colours onto reference,
// minimising the sum of squared residuals over all patches and channels.
// Both inputs are 0-255 BGR and must have the same length.
func Fit(measured, reference []chart.BGR) (Model, error) {
	if len(measured) != len(reference) {
		return Model{}, fmt.Errorf("%w: %d measured colours, %d reference colours",
			chart.ErrPatchCountMismatch, len(measured), len(reference))
	}
	if len(measured) == 0 {
		return Model{}, fmt.Errorf("%w: no colours to fit", chart.ErrPatchCountMismatch)
	}

	meas := normalize(measured)
	ref := normalize(reference)

	cost := func(x []float64) float64 {
		m := toModel(x)
		sum := 0.0
		for i, c := range meas {
			b, g, r := m.Apply(c[0], c[1], c[2])
			db, dg, dr := b-ref[i][0], g-ref[i][1], r-ref[i][2]
			sum += db*db + dg*dg + dr*dr
		}
		return sum
	}

	problem := optimize.Problem{
		Func: cost,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, cost, x, &fd.Settings{Formula: fd.Central})
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-10,
		MajorIterations:   2000,
	}

	x0 := startVector()
	start := cost(x0)
	result, err := optimize.Minimize(problem, x0, settings, &optimize.BFGS{})
	if result == nil {
		return Model{}, fmt.Errorf("calibration fit failed: %w", err)
	}
	if err != nil {
		// The line search can stop early without invalidating the best point
		// found so far.
		if math.IsNaN(result.F) || result.F > start {
			return Model{}, fmt.Errorf("calibration fit failed: %w", err)
		}
		monitoring.Diagf("[calibration] optimiser stopped early (%v), keeping cost %.6f", err, result.F)
	}

	model := toModel(result.X)
	if err := model.Validate(); err != nil {
		return Model{}, fmt.Errorf("calibration produced an invalid model: %w", err)
	}
	monitoring.Diagf("[calibration] fit converged: status=%v cost=%.6f->%.6f evals=%d",
		result.Status, start, result.F, result.Stats.FuncEvaluations)
	return model, nil
}

func normalize(colors []chart.BGR) []chart.BGR {
	out := make([]chart.BGR, len(colors))
	for i, c := range colors {
		out[i] = chart.BGR{c[0] / 255, c[1] / 255, c[2] / 255}
	}
	return out
}
