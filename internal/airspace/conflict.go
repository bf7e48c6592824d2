// Package airspace flags spatial overlap between mission footprints. The
// detector is advisory: it never blocks creation, it gives the operator the
// full list of overlapping missions to acknowledge.
package airspace

import (
	"math"

	"flightdeck/internal/domain"
)

const (
	earthRadiusMeters = 6371000
	// Fixed buffer added on top of the two mission radii.
	safetyMarginMeters = 100
)

// Candidate is the footprint being checked, before the mission necessarily
// exists as a record.
type Candidate struct {
	ID        string
	Latitude  float64
	Longitude float64
	Radius    float64
}

// Conflicts returns every active mission whose footprint overlaps the
// candidate's. The candidate's own prior version is excluded so that editing
// a mission does not flag it against itself.
func Conflicts(c Candidate, active []*domain.Mission) []*domain.Mission {
	var out []*domain.Mission
	for _, m := range active {
		if m.Status != "active" {
			continue
		}
		if c.ID != "" && m.ID == c.ID {
			continue
		}
		d := Haversine(c.Latitude, c.Longitude, m.Latitude, m.Longitude)
		if d < c.Radius+m.Radius+safetyMarginMeters {
			out = append(out, m)
		}
	}
	return out
}

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}
