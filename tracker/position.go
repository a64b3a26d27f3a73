package tracker

import "math"

// EarthRadius is the mean Earth radius in meters used by Distance.
const EarthRadius = 6371.0 * 1000

// Position is a latitude/longitude pair in degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Distance returns the great-circle distance between a and b in meters, using the haversine formula on a spherical
// Earth.
func Distance(a, b Position) float64 {
	latA, latB := radians(a.Lat), radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Pow(math.Sin(dLat/2), 2) + math.Cos(latA)*math.Cos(latB)*math.Pow(math.Sin(dLng/2), 2)
	// rounding can push h fractionally above 1 for antipodal points
	h = math.Min(h, 1)
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}
