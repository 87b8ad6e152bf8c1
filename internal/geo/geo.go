// Package geo holds the distance and geofence helpers used by the analytics tasks.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusKm is the mean Earth radius.
const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance between two points in kilometres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// Box builds a bounding box from latitude and longitude ranges. orb points are (lon, lat).
func Box(minLat, maxLat, minLon, maxLon float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Min(minLon, maxLon), math.Min(minLat, maxLat)},
		Max: orb.Point{math.Max(minLon, maxLon), math.Max(minLat, maxLat)},
	}
}

// ForbiddenCity approximates the Forbidden City in Beijing.
var ForbiddenCity = Box(39.916, 39.917, 116.397, 116.398)

// Inside reports whether (lat, lon) lies in b, edges included.
func Inside(b orb.Bound, lat, lon float64) bool {
	return b.Contains(orb.Point{lon, lat})
}
