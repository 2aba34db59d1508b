package event

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	vec := []float32{3, 4}
	Normalize(vec)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
	assert.True(t, IsUnitNorm(vec))
}

func TestNormalizeZeroVector(t *testing.T) {
	vec := []float32{0, 0, 0}
	Normalize(vec)
	assert.Equal(t, []float32{0, 0, 0}, vec)
	assert.False(t, IsUnitNorm(vec))
}

func TestIsUnitNormTolerance(t *testing.T) {
	vec := make([]float32, EmbeddingDim)
	vec[0] = 1
	assert.True(t, IsUnitNorm(vec))

	// Slightly outside the 1e-5 band.
	vec[0] = 1.0001
	assert.False(t, IsUnitNorm(vec))
}

func TestCosine(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, Cosine(a, b), 1e-9)
	assert.InDelta(t, 1.0, Cosine(a, a), 1e-9)

	c := []float32{float32(math.Sqrt2) / 2, float32(math.Sqrt2) / 2}
	assert.InDelta(t, math.Sqrt2/2, Cosine(a, c), 1e-6)
}

func TestCosineLengthMismatch(t *testing.T) {
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 0}))
}

func TestCameraTypePriority(t *testing.T) {
	assert.True(t, CameraBilling.Priority())
	assert.True(t, CameraEntrance.Priority())
	assert.False(t, CameraTracking.Priority())
	assert.False(t, CameraType("bogus").Valid())
	assert.True(t, CameraEmotion.Valid())
}
