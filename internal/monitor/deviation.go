// Package monitor tracks a user's live position against a selected route.
package monitor

import (
	"fmt"
	"math"
	"strings"

	"github.com/hershield/hershield/internal/geo"
	"github.com/hershield/hershield/internal/safety"
)

// DefaultThresholdMeters is the distance from the route beyond which a position counts as deviated.
const DefaultThresholdMeters = 50.0

// Strategy selects how the distance from a position to a route is measured.
type Strategy string

const (
	// StrategyNearestWaypoint measures the distance to the closest waypoint.
	StrategyNearestWaypoint Strategy = "nearest-waypoint"

	// StrategySegment measures the distance to the closest point on any
	// segment between consecutive waypoints.
	StrategySegment Strategy = "segment"
)

// ParseStrategy parses a strategy name. An empty string selects StrategyNearestWaypoint.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyNearestWaypoint:
		return StrategyNearestWaypoint, nil
	case StrategySegment:
		return StrategySegment, nil
	default:
		return "", fmt.Errorf("unknown deviation strategy %q", s)
	}
}

// Measurement is the result of comparing a position with a route.
type Measurement struct {
	// DistanceMeters is the minimum distance from the position to the route.
	DistanceMeters float64

	// NearestWaypoint is the index of the closest waypoint.
	NearestWaypoint int
}

// DeviationMonitor decides whether a position has left a route.
type DeviationMonitor struct {
	ThresholdMeters float64
	Strategy        Strategy
}

// NewDeviationMonitor creates a monitor. A non-positive threshold uses DefaultThresholdMeters.
func NewDeviationMonitor(thresholdMeters float64, strategy Strategy) DeviationMonitor {
	if thresholdMeters <= 0 || math.IsNaN(thresholdMeters) {
		thresholdMeters = DefaultThresholdMeters
	}
	if strategy == "" {
		strategy = StrategyNearestWaypoint
	}
	return DeviationMonitor{ThresholdMeters: thresholdMeters, Strategy: strategy}
}

// Measure returns the minimum distance from pos to route and the nearest waypoint.
// The segment strategy never reports more than the nearest waypoint distance,
// so a position on a waypoint always measures zero.
func (m DeviationMonitor) Measure(pos geo.Coordinate, route *safety.Route) Measurement {
	best := Measurement{DistanceMeters: math.Inf(1)}
	for i, wp := range route.Waypoints {
		if d := geo.Distance(pos, wp); d < best.DistanceMeters {
			best = Measurement{DistanceMeters: d, NearestWaypoint: i}
		}
	}

	if m.Strategy == StrategySegment {
		for i := 1; i < len(route.Waypoints); i++ {
			d := geo.DistanceToSegment(pos, route.Waypoints[i-1], route.Waypoints[i])
			if d < best.DistanceMeters {
				best.DistanceMeters = d
			}
		}
	}
	return best
}

// Evaluate reports whether pos is strictly farther than the threshold from route.
func (m DeviationMonitor) Evaluate(pos geo.Coordinate, route *safety.Route) bool {
	return m.deviated(m.Measure(pos, route))
}

func (m DeviationMonitor) deviated(ms Measurement) bool {
	threshold := m.ThresholdMeters
	if threshold <= 0 {
		threshold = DefaultThresholdMeters
	}
	return ms.DistanceMeters > threshold
}
