// Package sampler holds the pure-CPU frame admission logic of the
// ingestor: blank/corrupt frame validation, a cheap motion score, and
// the adaptive skip-interval sampler.
package sampler

import "math"

// Luma is a grayscale view of a decoded RGB frame.
type Luma struct {
	W, H int
	Pix  []uint8
}

// LumaFromRGB converts packed RGB (3 bytes/pixel) to a luma plane
// using integer Rec.601 weights.
func LumaFromRGB(data []byte, w, h int) Luma {
	pix := make([]uint8, w*h)
	for i := 0; i < w*h; i++ {
		r := int(data[i*3])
		g := int(data[i*3+1])
		b := int(data[i*3+2])
		pix[i] = uint8((299*r + 587*g + 114*b) / 1000)
	}
	return Luma{W: w, H: h, Pix: pix}
}

// MeanStd returns the pixel mean and standard deviation.
func (l Luma) MeanStd() (float64, float64) {
	if len(l.Pix) == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for _, p := range l.Pix {
		v := float64(p)
		sum += v
		sumSq += v * v
	}
	n := float64(len(l.Pix))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// Validation thresholds: outside these, the frame is blank or
// corrupted content and is dropped before sampling.
const (
	minPixelMean = 2.0
	maxPixelMean = 253.0
	minPixelStd  = 5.0
)

// Valid reports whether a frame's pixel statistics indicate usable
// content.
func Valid(mean, std float64) bool {
	return mean >= minPixelMean && mean <= maxPixelMean && std >= minPixelStd
}
