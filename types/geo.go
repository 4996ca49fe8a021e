package types

import "math"

const earthRadiusKM = 6371.0

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat" firestore:"lat"`
	Lng float64 `json:"lng" firestore:"lng"`
}

// IsZero reports whether the point was never set. (0,0) is open ocean, so the
// backend uses it to mean "unknown".
func (p LatLng) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// DistanceKM is the great-circle (haversine) distance to q.
func (p LatLng) DistanceKM(q LatLng) float64 {
	radLat1 := p.Lat * math.Pi / 180
	radLat2 := q.Lat * math.Pi / 180
	deltaLat := radLat2 - radLat1
	deltaLon := (q.Lng - p.Lng) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(radLat1)*math.Cos(radLat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

// Polygon is a GeoJSON polygon: rings of [lng, lat] pairs.
type Polygon struct {
	Type        string        `json:"type" firestore:"type"`
	Coordinates [][][]float64 `json:"coordinates" firestore:"-"`
}
