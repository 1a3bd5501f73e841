package verify

import (
	"fmt"
	"math"

	"questhunt/internal/models"
)

// Mean earth radius in meters. Fixed so distances are reproducible; no
// geodesy library behavior to depend on.
const earthRadiusMeters = 6371000.0

func verifyLocation(step *models.Step, ev models.Evidence) (Verdict, error) {
	if step.LocationLat == nil || step.LocationLng == nil || step.LocationRadius == nil {
		return Verdict{}, fmt.Errorf("step %s requires location verification but has no location", step.ID)
	}
	if ev.Lat == nil || ev.Lng == nil {
		return rejected(ReasonMissingEvidence), nil
	}

	distance := haversineMeters(*ev.Lat, *ev.Lng, *step.LocationLat, *step.LocationLng)
	if distance <= float64(*step.LocationRadius) {
		return accepted(models.Evidence{Lat: ev.Lat, Lng: ev.Lng}), nil
	}
	return rejected(ReasonTooFar), nil
}

// haversineMeters computes the great-circle distance between two points on a
// spherical earth.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180

	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lng2 - lng1) * degToRad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
