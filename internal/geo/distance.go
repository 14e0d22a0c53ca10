package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for all great-circle math.
const EarthRadiusMeters = 6371000.0

const degToRad = math.Pi / 180

// Distance returns the great-circle distance in meters between a and b using
// the haversine formula.
func Distance(a, b Coordinate) float64 {
	if a == b {
		return 0
	}

	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad
	dLat := (b.Lat - a.Lat) * degToRad
	dLon := (b.Lon - a.Lon) * degToRad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// DistanceToSegment returns the distance in meters from p to the segment a-b.
//
// The point is projected onto the segment in a local equirectangular frame
// centred on a; the projection is clamped to the segment and the final
// distance is measured with haversine. Adequate for the sub-10 km segments
// of an urban route.
func DistanceToSegment(p, a, b Coordinate) float64 {
	if a == b {
		return Distance(p, a)
	}

	cosLat := math.Cos(a.Lat * degToRad)
	bx := (b.Lon - a.Lon) * cosLat
	by := b.Lat - a.Lat
	px := (p.Lon - a.Lon) * cosLat
	py := p.Lat - a.Lat

	t := (px*bx + py*by) / (bx*bx + by*by)
	switch {
	case t <= 0:
		return Distance(p, a)
	case t >= 1:
		return Distance(p, b)
	}

	proj := Coordinate{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lon: a.Lon + t*(b.Lon-a.Lon),
	}
	return Distance(p, proj)
}

// Offset returns the point reached by moving north and east by the given
// number of meters from c. Used to synthesise waypoints and in tests.
func Offset(c Coordinate, northMeters, eastMeters float64) Coordinate {
	dLat := northMeters / EarthRadiusMeters / degToRad
	dLon := eastMeters / (EarthRadiusMeters * math.Cos(c.Lat*degToRad)) / degToRad
	return Coordinate{Lat: c.Lat + dLat, Lon: c.Lon + dLon}
}

// PathLength returns the summed great-circle length of a polyline in meters.
func PathLength(points []Coordinate) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}
