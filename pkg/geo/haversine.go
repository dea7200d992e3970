package geo

import "math"

const earthRadiusMeters = 6_371_000.0

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// EquirectangularDist returns an approximate distance in meters.
// Use for candidate filtering and comparisons, not for reported distances.
func EquirectangularDist(lat1, lon1, lat2, lon2 float64) float64 {
	x := (lon2 - lon1) * math.Cos((lat1+lat2)/2*math.Pi/180) * math.Pi / 180
	y := (lat2 - lat1) * math.Pi / 180
	return math.Sqrt(x*x+y*y) * earthRadiusMeters
}

// Densify returns points along the segment from (lat1, lon1) to (lat2, lon2)
// spaced at most step meters apart. Both endpoints are included.
// Interpolation is linear in degrees, which is fine for the short spans
// between consecutive way nodes.
func Densify(lat1, lon1, lat2, lon2, step float64) [][2]float64 {
	n := 1
	if step > 0 {
		d := EquirectangularDist(lat1, lon1, lat2, lon2)
		n = max(int(math.Ceil(d/step)), 1)
	}
	out := make([][2]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		out = append(out, [2]float64{lat1 + (lat2-lat1)*t, lon1 + (lon2-lon1)*t})
	}
	return out
}
