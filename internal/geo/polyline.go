package geo

import (
	"fmt"

	"github.com/twpayne/go-polyline"
)

// EncodePolyline encodes points with the Google polyline algorithm (precision 5).
func EncodePolyline(points []Coordinate) string {
	if len(points) == 0 {
		return ""
	}
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lon}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePolyline decodes a Google polyline string and validates every point.
func DecodePolyline(encoded string) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decoding polyline: %w", err)
	}

	points := make([]Coordinate, len(coords))
	for i, c := range coords {
		points[i] = Coordinate{Lat: c[0], Lon: c[1]}
		if err := points[i].Validate(fmt.Sprintf("polyline[%d]", i)); err != nil {
			return nil, err
		}
	}
	return points, nil
}
