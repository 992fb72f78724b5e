package engine

import "math"

// =============================================================================
// GEO-DISTANCE
// =============================================================================

const (
	// NauticalMilesPerDegree is one minute of arc per nautical mile.
	NauticalMilesPerDegree = 60.0

	// StatuteMilesPerNauticalMile converts nautical to statute miles.
	StatuteMilesPerNauticalMile = 1.15077945
)

// Distance returns the great-circle distance between a and b in statute
// miles, using the spherical law of cosines.
//
// The cosine of the central angle is clamped to [-1, 1]. Rounding can push
// it just past 1 for identical points, and math.Acos would return NaN.
func Distance(a, b Coordinate) float64 {
	if a == b {
		return 0
	}

	lat1 := radians(a.Latitude)
	lon1 := radians(a.Longitude)
	lat2 := radians(b.Latitude)
	lon2 := radians(b.Longitude)

	cosAngle := math.Sin(lat1)*math.Sin(lat2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Cos(lon1-lon2)
	cosAngle = math.Max(-1, math.Min(1, cosAngle))

	angle := math.Acos(cosAngle)
	nauticalMiles := NauticalMilesPerDegree * degrees(angle)
	return StatuteMilesPerNauticalMile * nauticalMiles
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
