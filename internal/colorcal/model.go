// Package colorcal fits and applies the non-linear colour correction that
// maps camera colours onto the reference chart.
package colorcal

import (
	"fmt"
	"math"
)

const (
	// MinGamma and MaxGamma bound every channel exponent.
	MinGamma = 0.1
	MaxGamma = 5.0

	// floor keeps the base of the power positive.
	floor = 1e-6

	paramsPerChannel = 5
)

// Model holds five parameters per output channel, in B, G, R order:
// the weights applied to the B, G and R inputs, a bias, and a gamma.
//
//	out_j = max(w_j1*B + w_j2*G + w_j3*R + bias_j, 1e-6) ^ gamma_j
//
// Inputs and outputs are normalised to [0,1].
type Model [15]float64

// Identity returns the model that leaves colours unchanged.
func Identity() Model {
	var m Model
	for ch := 0; ch < 3; ch++ {
		m[ch*paramsPerChannel+ch] = 1
		m[ch*paramsPerChannel+4] = 1
	}
	return m
}

// Gamma returns the exponent for output channel ch (0=B, 1=G, 2=R).
func (m *Model) Gamma(ch int) float64 {
	return m[ch*paramsPerChannel+4]
}

// Apply maps one normalised BGR colour through the model. The result is not
// clipped.
func (m *Model) Apply(b, g, r float64) (float64, float64, float64) {
	return m.channel(0, b, g, r), m.channel(1, b, g, r), m.channel(2, b, g, r)
}

func (m *Model) channel(ch int, b, g, r float64) float64 {
	p := m[ch*paramsPerChannel : ch*paramsPerChannel+paramsPerChannel]
	lin := p[0]*b + p[1]*g + p[2]*r + p[3]
	if lin < floor {
		lin = floor
	}
	return math.Pow(lin, p[4])
}

// Validate checks that every gamma lies in [MinGamma, MaxGamma] and that no
// parameter is NaN or infinite.
func (m *Model) Validate() error {
	for i, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("model parameter %d is not finite: %v", i, v)
		}
	}
	for ch := 0; ch < 3; ch++ {
		if g := m.Gamma(ch); g < MinGamma || g > MaxGamma {
			return fmt.Errorf("gamma for channel %d out of range [%v, %v]: %v", ch, MinGamma, MaxGamma, g)
		}
	}
	return nil
}
