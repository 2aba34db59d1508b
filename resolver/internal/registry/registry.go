// Package registry holds the resolver's in-memory identity state: the
// last confirmed sighting per customer, plus the live track->customer
// assignments used to catch false merges (one customer on two cameras
// at the same time).
//
// The registry is owned by the single consumer goroutine; it is not
// safe for concurrent use.
package registry

import (
	"fmt"

	"github.com/trinetra-vision/trinetra/resolver/internal/gate"
)

// Sighting is the last confirmed position of a customer.
type Sighting struct {
	Camera    string
	TS        float64
	Embedding []float32
}

// Assignment binds a live track to a customer.
type Assignment struct {
	Camera     string
	TrackID    int64
	CustomerID string
	TS         float64
}

// Suspect is one false-merge finding: the same customer on two tracks
// whose implied transition violates the travel-time matrix.
type Suspect struct {
	CustomerID string
	A, B       Assignment
}

// Registry is the active identity state.
type Registry struct {
	windowS     float64
	identities  map[string]Sighting
	assignments map[string]Assignment
}

// New builds a registry whose entries expire after windowS seconds.
func New(windowS float64) *Registry {
	return &Registry{
		windowS:     windowS,
		identities:  make(map[string]Sighting),
		assignments: make(map[string]Assignment),
	}
}

// Get returns the last sighting of a customer.
func (r *Registry) Get(customerID string) (Sighting, bool) {
	s, ok := r.identities[customerID]
	return s, ok
}

// Set records a confirmed sighting and the track assignment behind it.
func (r *Registry) Set(customerID, camera string, trackID int64, ts float64, embedding []float32) {
	r.identities[customerID] = Sighting{Camera: camera, TS: ts, Embedding: embedding}
	r.assignments[trackKey(camera, trackID)] = Assignment{
		Camera:     camera,
		TrackID:    trackID,
		CustomerID: customerID,
		TS:         ts,
	}
}

// Delete removes a customer's sighting. Used for lazy expiry when the
// gate finds an entry older than its window.
func (r *Registry) Delete(customerID string) {
	delete(r.identities, customerID)
}

// RecordCandidate notes a gate-rejected high-similarity candidate as a
// track assignment without touching the sighting map. The false-merge
// sweep uses these to corroborate simultaneous assignments that the
// gate already suppressed.
func (r *Registry) RecordCandidate(customerID, camera string, trackID int64, ts float64) {
	r.assignments[trackKey(camera, trackID)] = Assignment{
		Camera:     camera,
		TrackID:    trackID,
		CustomerID: customerID,
		TS:         ts,
	}
}

// Len returns the number of active customers.
func (r *Registry) Len() int {
	return len(r.identities)
}

// SweepExpired drops sightings and assignments older than the window
// and returns how many customers were evicted.
func (r *Registry) SweepExpired(now float64) int {
	evicted := 0
	for id, s := range r.identities {
		if now-s.TS > r.windowS {
			delete(r.identities, id)
			evicted++
		}
	}
	for key, a := range r.assignments {
		if now-a.TS > r.windowS {
			delete(r.assignments, key)
		}
	}
	return evicted
}

// FalseMerges reverse-indexes the live assignments by customer and
// reports every pair on distinct cameras whose time gap is below the
// travel-time floor. staleS bounds how old an assignment may be and
// still count as "current".
func (r *Registry) FalseMerges(g *gate.Gate, now, staleS float64) []Suspect {
	byCustomer := make(map[string][]Assignment)
	for _, a := range r.assignments {
		if now-a.TS > staleS {
			continue
		}
		byCustomer[a.CustomerID] = append(byCustomer[a.CustomerID], a)
	}

	var suspects []Suspect
	for customerID, list := range byCustomer {
		if len(list) < 2 {
			continue
		}
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list); j++ {
				a, b := list[i], list[j]
				if a.Camera == b.Camera {
					continue
				}
				dt := a.TS - b.TS
				if dt < 0 {
					dt = -dt
				}
				if dt < g.MinTravel(a.Camera, b.Camera) || dt < g.MinTravel(b.Camera, a.Camera) {
					suspects = append(suspects, Suspect{CustomerID: customerID, A: a, B: b})
				}
			}
		}
	}
	return suspects
}

func trackKey(camera string, trackID int64) string {
	return fmt.Sprintf("%s/%d", camera, trackID)
}
