package geospatial

import "math"

const earthRadiusKm = 6371.0

// DistanceKm calculates the great-circle distance in kilometers between two
// points given in degrees.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// BoundingBox returns a bounding box around a point with the given radius in kilometers.
func BoundingBox(lat, lon, radiusKm float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusKm / 111.32
	lonDelta := radiusKm / (111.32 * math.Cos(toRad(lat)))

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

// Offset returns the point reached by moving distanceKm from (lat, lon) along
// the given bearing in degrees (0 = north, 90 = east).
func Offset(lat, lon, distanceKm, bearingDeg float64) (float64, float64) {
	ang := distanceKm / earthRadiusKm
	brng := toRad(bearingDeg)
	phi1 := toRad(lat)
	lam1 := toRad(lon)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(ang) + math.Cos(phi1)*math.Sin(ang)*math.Cos(brng))
	lam2 := lam1 + math.Atan2(math.Sin(brng)*math.Sin(ang)*math.Cos(phi1), math.Cos(ang)-math.Sin(phi1)*math.Sin(phi2))

	return toDeg(phi2), toDeg(lam2)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
