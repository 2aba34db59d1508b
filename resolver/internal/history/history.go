// Package history implements per-track identity confirmation: a
// candidate must win a majority of recent assignments before it is
// emitted as matched, which suppresses single-frame flickers.
package history

import "fmt"

const (
	// RingSize is how many recent assignments are kept per track.
	RingSize = 5
	// MajorityNeed is how many of those must agree.
	MajorityNeed = 3
	// demoteAfter consecutive disagreements sends a resolved track back
	// to collecting (identity flicker).
	demoteAfter = 3
)

// State of one track's confirmation lifecycle.
type State int

const (
	StateNew State = iota
	StateCollecting
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateCollecting:
		return "collecting"
	case StateResolved:
		return "resolved"
	}
	return "unknown"
}

// Outcome of recording one candidate assignment.
type Outcome struct {
	// Matched is true when the majority rule holds: full ring, majority
	// agreement, and majority average score at or above the threshold.
	Matched    bool
	CustomerID string
	// Confidence is the majority's average score (matched only).
	Confidence float64
	// Flicker is true when this assignment demoted or swung a resolved
	// track.
	Flicker bool
}

type entry struct {
	customerID string
	score      float64
}

type ring struct {
	entries   []entry
	state     State
	resolved  string
	disagrees int
	lastTS    float64
}

// Tracks confirms identities across all live tracks. Owned by the
// single consumer goroutine; not safe for concurrent use.
type Tracks struct {
	threshold float64
	staleS    float64
	rings     map[string]*ring
}

// New builds the track table. threshold is the minimum majority average
// score; staleS is the idle age after which a track's ring is cleared.
func New(threshold, staleS float64) *Tracks {
	return &Tracks{
		threshold: threshold,
		staleS:    staleS,
		rings:     make(map[string]*ring),
	}
}

// Observe records the gate-surviving top candidate for a track and
// returns the confirmation outcome.
func (t *Tracks) Observe(camera string, trackID int64, ts float64, customerID string, score float64) Outcome {
	key := trackKey(camera, trackID)
	r, ok := t.rings[key]
	if !ok {
		r = &ring{state: StateNew}
		t.rings[key] = r
	}
	r.lastTS = ts

	r.entries = append(r.entries, entry{customerID: customerID, score: score})
	if len(r.entries) > RingSize {
		r.entries = r.entries[1:]
	}

	majority, avg, full := r.vote()
	matched := full && majority != "" && avg >= t.threshold

	var out Outcome
	switch {
	case matched:
		out = Outcome{Matched: true, CustomerID: majority, Confidence: avg}
		if r.state == StateResolved && r.resolved != majority {
			// Majority swung to another identity.
			out.Flicker = true
		}
		// A disagreeing candidate can leave the ring majority intact for
		// a couple of events; keep counting so the demotion below fires
		// as soon as the majority finally breaks.
		if r.state == StateResolved && majority == r.resolved && customerID != r.resolved {
			r.disagrees++
		} else {
			r.disagrees = 0
		}
		r.state = StateResolved
		r.resolved = majority
	case r.state == StateResolved:
		if customerID != r.resolved {
			r.disagrees++
			if r.disagrees >= demoteAfter {
				r.state = StateCollecting
				r.resolved = ""
				r.disagrees = 0
				out.Flicker = true
			}
		} else {
			r.disagrees = 0
		}
	default:
		r.state = StateCollecting
	}
	return out
}

// State returns the lifecycle state of a track. Unknown tracks are NEW.
func (t *Tracks) State(camera string, trackID int64) State {
	if r, ok := t.rings[trackKey(camera, trackID)]; ok {
		return r.state
	}
	return StateNew
}

// Len returns the number of live track rings.
func (t *Tracks) Len() int {
	return len(t.rings)
}

// Sweep clears rings idle since before now−staleS and returns how many
// were dropped.
func (t *Tracks) Sweep(now float64) int {
	dropped := 0
	for key, r := range t.rings {
		if now-r.lastTS > t.staleS {
			delete(t.rings, key)
			dropped++
		}
	}
	return dropped
}

// vote returns the majority candidate and its average score. full is
// false until the ring holds RingSize entries; majority is empty when
// no candidate reaches MajorityNeed.
func (r *ring) vote() (majority string, avg float64, full bool) {
	if len(r.entries) < RingSize {
		return "", 0, false
	}
	counts := make(map[string]int, RingSize)
	sums := make(map[string]float64, RingSize)
	for _, e := range r.entries {
		counts[e.customerID]++
		sums[e.customerID] += e.score
	}
	best, bestCount := "", 0
	for id, n := range counts {
		if n > bestCount {
			best, bestCount = id, n
		}
	}
	if bestCount < MajorityNeed {
		return "", 0, true
	}
	return best, sums[best] / float64(counts[best]), true
}

func trackKey(camera string, trackID int64) string {
	return fmt.Sprintf("%s/%d", camera, trackID)
}
