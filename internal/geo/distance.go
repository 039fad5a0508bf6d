package geo

import "math"

const earthRadiusMiles = 3958.7613

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DistanceMiles is the great-circle distance between a and b.
func DistanceMiles(a, b Point) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := lat2 - lat1
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMiles * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Round1 rounds miles to one decimal, the precision distances are reported at.
func Round1(miles float64) float64 {
	return math.Round(miles*10) / 10
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
