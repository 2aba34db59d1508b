// Package gate implements the spatiotemporal plausibility check: a
// candidate identity is rejected when the implied movement between two
// cameras is faster than the measured travel time allows.
package gate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// safetyFactor shrinks measured travel times to absorb cross-camera
	// clock skew.
	safetyFactor = 0.9
	// defaultMinTravel applies to camera pairs missing from the matrix.
	defaultMinTravel = 3.0
)

// Decision is the gate outcome for one candidate.
type Decision int

const (
	// Allow: transition is plausible (or same camera, or no prior sighting).
	Allow Decision = iota
	// RejectPhysics: the candidate would have had to move faster than the
	// travel-time matrix permits.
	RejectPhysics
	// Expired: the prior sighting is older than the gate window; the
	// registry entry is stale and the candidate is allowed as a re-entry.
	Expired
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RejectPhysics:
		return "impossible_transition"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// Gate holds the travel-time matrix and the session window.
type Gate struct {
	windowS float64
	travel  map[string]map[string]float64
}

type travelFile struct {
	// TravelTimes maps from-camera -> to-camera -> measured seconds.
	TravelTimes map[string]map[string]float64 `yaml:"travel_times"`
}

// Load reads a travel_times.yaml matrix.
func Load(path string, windowS float64) (*Gate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gate: read %s: %w", path, err)
	}
	return Parse(data, windowS)
}

// Parse validates raw YAML travel times.
func Parse(data []byte, windowS float64) (*Gate, error) {
	var file travelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("gate: parse yaml: %w", err)
	}
	for from, row := range file.TravelTimes {
		for to, secs := range row {
			if secs < 0 {
				return nil, fmt.Errorf("gate: negative travel time %s->%s", from, to)
			}
		}
	}
	return New(file.TravelTimes, windowS), nil
}

// New builds a gate from an in-memory matrix. travel may be nil.
func New(travel map[string]map[string]float64, windowS float64) *Gate {
	return &Gate{windowS: windowS, travel: travel}
}

// MinTravel returns the minimum plausible transit time between two
// cameras, safety factor applied.
func (g *Gate) MinTravel(fromCamera, toCamera string) float64 {
	if row, ok := g.travel[fromCamera]; ok {
		if secs, ok := row[toCamera]; ok {
			return secs * safetyFactor
		}
	}
	return defaultMinTravel * safetyFactor
}

// Check gates one candidate against its last registry sighting.
// lastTS and ts are effective timestamps in seconds.
func (g *Gate) Check(lastCamera string, lastTS float64, camera string, ts float64) Decision {
	dt := ts - lastTS
	if dt >= g.windowS {
		return Expired
	}
	if lastCamera == camera {
		return Allow
	}
	if dt < g.MinTravel(lastCamera, camera) {
		return RejectPhysics
	}
	return Allow
}

// Window returns the gate window in seconds.
func (g *Gate) Window() float64 {
	return g.windowS
}
