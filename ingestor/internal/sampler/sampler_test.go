package sampler

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformRGB(w, h int, value uint8) []byte {
	data := make([]byte, w*h*3)
	for i := range data {
		data[i] = value
	}
	return data
}

func noisyRGB(w, h int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	data := make([]byte, w*h*3)
	for i := range data {
		data[i] = uint8(rng.Intn(256))
	}
	return data
}

func TestValidator(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		valid bool
	}{
		{"black frame", uniformRGB(64, 64, 0), false},
		{"white frame", uniformRGB(64, 64, 255), false},
		{"flat gray frame", uniformRGB(64, 64, 128), false}, // std below threshold
		{"noisy frame", noisyRGB(64, 64, 1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			luma := LumaFromRGB(tt.data, 64, 64)
			mean, std := luma.MeanStd()
			assert.Equal(t, tt.valid, Valid(mean, std))
		})
	}
}

func TestLumaMeanStd(t *testing.T) {
	luma := LumaFromRGB(uniformRGB(8, 8, 100), 8, 8)
	mean, std := luma.MeanStd()
	assert.InDelta(t, 100, mean, 1)
	assert.InDelta(t, 0, std, 1e-9)
}

func TestAdaptiveBaseInterval(t *testing.T) {
	s := NewAdaptive(30, 15, 0.80, 2.5)
	assert.Equal(t, 2, s.Interval())

	// With no backpressure and no motion, every second frame forwards.
	forwarded := 0
	for i := 0; i < 10; i++ {
		if s.ShouldForward(0.1, 0.0) {
			forwarded++
		}
	}
	assert.Equal(t, 5, forwarded)
}

func TestAdaptiveBackpressureGrowsInterval(t *testing.T) {
	s := NewAdaptive(30, 15, 0.80, 2.5)

	for i := 0; i < 20; i++ {
		s.ShouldForward(0.95, 0.0)
	}
	// Capped at 3x base.
	assert.Equal(t, 6, s.Interval())
}

func TestAdaptiveMotionShrinksInterval(t *testing.T) {
	s := NewAdaptive(30, 5, 0.80, 2.5)
	require.Equal(t, 6, s.Interval())

	for i := 0; i < 10; i++ {
		s.ShouldForward(0.1, 5.0)
	}
	assert.Equal(t, 1, s.Interval())
}

func TestAdaptiveHoldsAtBaseWhenQuiet(t *testing.T) {
	s := NewAdaptive(30, 15, 0.80, 2.5)

	// Drive the interval up, then let backpressure clear.
	for i := 0; i < 10; i++ {
		s.ShouldForward(0.95, 0.0)
	}
	s.ShouldForward(0.1, 0.0)
	assert.Equal(t, 2, s.Interval())
}

func TestAdaptiveTargetAboveCapture(t *testing.T) {
	s := NewAdaptive(15, 30, 0.80, 2.5)
	assert.Equal(t, 1, s.Interval())
	assert.True(t, s.ShouldForward(0.0, 0.0))
}

func TestMotionEstimator(t *testing.T) {
	var m MotionEstimator

	static := LumaFromRGB(uniformRGB(64, 64, 100), 64, 64)
	assert.Zero(t, m.Score(static), "first frame scores zero")
	assert.Zero(t, m.Score(static), "identical frame scores zero")

	bright := LumaFromRGB(uniformRGB(64, 64, 150), 64, 64)
	score := m.Score(bright)
	assert.Greater(t, score, 2.5, "large change exceeds default threshold")
}
