// Package geo provides the coordinate value type and great-circle geometry
// shared by the planner, the geocoder and the deviation monitor.
package geo

import (
	"errors"
	"fmt"
)

// ErrInvalidCoordinates indicates a latitude or longitude outside the valid range.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Coordinate is an immutable geographic point in decimal degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// InputError describes which coordinate failed validation and why.
type InputError struct {
	Field string // e.g. "origin", "destination", "position"
	Lat   float64
	Lon   float64
}

func (e *InputError) Error() string {
	field := e.Field
	if field == "" {
		field = "coordinate"
	}
	return fmt.Sprintf("%s (%f, %f): %s: latitude must be [-90, 90], longitude must be [-180, 180]",
		field, e.Lat, e.Lon, ErrInvalidCoordinates)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidCoordinates
}

// NewCoordinate returns a validated Coordinate.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	c := Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(""); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Validate checks that c is within range. field names the coordinate in the error.
func (c Coordinate) Validate(field string) error {
	if !c.Valid() {
		return &InputError{Field: field, Lat: c.Lat, Lon: c.Lon}
	}
	return nil
}

// Valid reports whether c is within [-90, 90] x [-180, 180]. NaN is never valid.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Pair returns the coordinate as a [lat, lon] pair, the order used on the wire.
func (c Coordinate) Pair() [2]float64 {
	return [2]float64{c.Lat, c.Lon}
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}
