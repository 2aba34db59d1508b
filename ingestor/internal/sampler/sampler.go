package sampler

// Adaptive decides whether a given frame is forwarded to the FrameBus.
//
// Baseline: forward every Nth frame (N = capture_fps / target_fps).
// Backpressure: above the high-water fill ratio the skip interval
// grows (capped at 3x base). High motion pulls the interval back
// toward 1. Otherwise it holds at base.
type Adaptive struct {
	baseInterval    int
	interval        int
	count           uint64
	highWater       float64
	motionThreshold float64
}

// NewAdaptive derives the base skip interval from the capture and
// target frame rates.
func NewAdaptive(captureFPS, targetFPS int, highWater, motionThreshold float64) *Adaptive {
	base := 1
	if targetFPS > 0 && captureFPS > targetFPS {
		base = captureFPS / targetFPS
	}
	return &Adaptive{
		baseInterval:    base,
		interval:        base,
		highWater:       highWater,
		motionThreshold: motionThreshold,
	}
}

// ShouldForward counts the frame and returns whether it passes the
// skip-interval decision.
func (s *Adaptive) ShouldForward(fillRatio, motion float64) bool {
	s.count++

	switch {
	case fillRatio > s.highWater:
		if s.interval < s.baseInterval*3 {
			s.interval++
		}
	case motion > s.motionThreshold:
		if s.interval > 1 {
			s.interval--
		}
	default:
		s.interval = s.baseInterval
	}

	return s.count%uint64(s.interval) == 0
}

// Interval exposes the current skip interval for observability.
func (s *Adaptive) Interval() int {
	return s.interval
}
