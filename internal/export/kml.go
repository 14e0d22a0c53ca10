// Package export renders planned routes for use outside the app.
package export

import (
	"fmt"
	"image/color"
	"io"

	"github.com/twpayne/go-kml"

	"github.com/hershield/hershield/internal/geo"
	"github.com/hershield/hershield/internal/safety"
)

// KMLContentType is the media type of KML documents.
const KMLContentType = "application/vnd.google-earth.kml+xml"

// riskColors maps colour hints to opaque RGBA values.
var riskColors = map[string]color.RGBA{
	"green":  {R: 0x2e, G: 0x7d, B: 0x32, A: 0xff},
	"orange": {R: 0xef, G: 0x6c, B: 0x00, A: 0xff},
	"red":    {R: 0xc6, G: 0x28, B: 0x28, A: 0xff},
	"blue":   {R: 0x15, G: 0x65, B: 0xc0, A: 0xff},
}

// KMLFilename returns the download name for a route.
func KMLFilename(route *safety.Route) string {
	return fmt.Sprintf("hershield-route-%d.kml", route.ID)
}

// RouteKML builds a KML document with the route line coloured by risk and
// a placemark at each end.
func RouteKML(route *safety.Route) *kml.CompoundElement {
	coords := make([]kml.Coordinate, len(route.Waypoints))
	for i, wp := range route.Waypoints {
		coords[i] = kmlCoordinate(wp)
	}

	line := kml.Placemark(
		kml.Name(route.Name),
		kml.Description(fmt.Sprintf("Safety score %.1f (%s risk), %.1f km, %d min",
			route.SafetyScore, route.RiskLevel, route.DistanceKm, route.DurationMin)),
		kml.Style(
			kml.LineStyle(
				kml.Color(riskColors[route.RiskLevel.ColorHint()]),
				kml.Width(5),
			),
		),
		kml.LineString(
			kml.Tessellate(true),
			kml.Coordinates(coords...),
		),
	)

	return kml.KML(
		kml.Document(
			kml.Name(route.Name),
			line,
			kml.Placemark(
				kml.Name("Start"),
				kml.Point(kml.Coordinates(kmlCoordinate(route.Origin()))),
			),
			kml.Placemark(
				kml.Name("Destination"),
				kml.Point(kml.Coordinates(kmlCoordinate(route.Destination()))),
			),
		),
	)
}

// WriteRouteKML writes the KML document of route to w.
func WriteRouteKML(w io.Writer, route *safety.Route) error {
	if err := RouteKML(route).WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("writing kml: %w", err)
	}
	return nil
}

// kmlCoordinate converts to KML order, which is longitude first.
func kmlCoordinate(c geo.Coordinate) kml.Coordinate {
	return kml.Coordinate{Lon: c.Lon, Lat: c.Lat}
}
