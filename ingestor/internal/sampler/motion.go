package sampler

// motionDownsample trades accuracy for speed; the score only has to
// separate "static scene" from "people moving".
const motionDownsample = 8

// MotionEstimator scores inter-frame motion as the mean absolute luma
// difference between consecutive frames, computed on a downsampled
// grid. This is a cheap dense-motion proxy; the first frame scores 0.
type MotionEstimator struct {
	prev []uint8
	w, h int
}

// Score consumes the next frame and returns its motion score relative
// to the previous one.
func (m *MotionEstimator) Score(l Luma) float64 {
	dw := l.W / motionDownsample
	dh := l.H / motionDownsample
	if dw == 0 || dh == 0 {
		return 0
	}

	grid := make([]uint8, dw*dh)
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			grid[y*dw+x] = l.Pix[(y*motionDownsample)*l.W+x*motionDownsample]
		}
	}

	if m.prev == nil || m.w != dw || m.h != dh {
		m.prev, m.w, m.h = grid, dw, dh
		return 0
	}

	var sum float64
	for i := range grid {
		d := int(grid[i]) - int(m.prev[i])
		if d < 0 {
			d = -d
		}
		sum += float64(d)
	}
	m.prev = grid
	return sum / float64(len(grid))
}
