package colorcal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	b, g, r := m.Apply(0.2, 0.5, 0.9)
	assert.InDelta(t, 0.2, b, 1e-12)
	assert.InDelta(t, 0.5, g, 1e-12)
	assert.InDelta(t, 0.9, r, 1e-12)
	assert.NoError(t, m.Validate())
}

func TestApply_FloorsNegativeBase(t *testing.T) {
	var m Model
	for ch := 0; ch < 3; ch++ {
		m[ch*5+3] = -1
		m[ch*5+4] = 1
	}
	b, _, _ := m.Apply(0.5, 0.5, 0.5)
	assert.InDelta(t, 1e-6, b, 1e-12)
}

func TestApply_Gamma(t *testing.T) {
	m := Identity()
	m[9] = 2 // G gamma
	_, g, _ := m.Apply(0, 0.5, 0)
	assert.InDelta(t, 0.25, g, 1e-12)
}

func TestValidate(t *testing.T) {
	m := Identity()
	m[14] = 5.5
	assert.ErrorContains(t, m.Validate(), "gamma for channel 2")

	m = Identity()
	m[4] = 0.05
	assert.Error(t, m.Validate())

	m = Identity()
	m[2] = math.NaN()
	assert.ErrorContains(t, m.Validate(), "not finite")
}
