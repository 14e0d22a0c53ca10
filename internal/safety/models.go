// Package safety scores and ranks candidate routes by how safe they are to travel.
package safety

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hershield/hershield/internal/geo"
)

// Sentinel errors for safety scoring.
var (
	// ErrInvariantViolation indicates a route that breaks the score, risk or shape rules.
	// It is never coerced into a valid route.
	ErrInvariantViolation = errors.New("route invariant violation")
	// ErrScorerUnavailable indicates the scoring oracle is down or the circuit breaker is open.
	ErrScorerUnavailable = errors.New("safety scorer unavailable")
	// ErrScorerRejected indicates the oracle answered but reported a non-success status.
	ErrScorerRejected = errors.New("safety scorer rejected request")
	// ErrNoRoutes indicates a scorer returned an empty route list.
	ErrNoRoutes = errors.New("scorer returned no routes")
)

// Scorer produces candidate routes with safety scores for a travel context.
// Implementations must build routes through NewRoute.
type Scorer interface {
	// Score returns unranked candidate routes for the context.
	Score(ctx context.Context, tc TravelContext) ([]Route, error)
	// Name returns the scorer identifier for logging and metrics.
	Name() string
}

// RiskLevel is the coarse risk category derived from a safety score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Score thresholds for risk levels. Both bounds are exclusive from below.
const (
	LowRiskAbove    = 70.0
	MediumRiskAbove = 40.0
)

// RiskLevelForScore maps a safety score to its risk level.
// Scores above 70 are Low, above 40 Medium, anything else High.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score > LowRiskAbove:
		return RiskLow
	case score > MediumRiskAbove:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// ParseRiskLevel parses a risk level label, case-sensitively.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh:
		return RiskLevel(s), true
	}
	return "", false
}

// ColorHint returns the display colour conventionally used for the level.
func (l RiskLevel) ColorHint() string {
	switch l {
	case RiskLow:
		return "green"
	case RiskMedium:
		return "orange"
	case RiskHigh:
		return "red"
	default:
		return "blue"
	}
}

// Route is a scored candidate path. Construct with NewRoute; the zero value is not valid.
type Route struct {
	ID          int
	Name        string
	Waypoints   []geo.Coordinate // first is the origin, last the destination
	DistanceKm  float64
	DurationMin int
	SafetyScore float64 // [0, 100]
	RiskLevel   RiskLevel
}

// RouteInput carries the raw fields of a route before validation.
type RouteInput struct {
	ID          int
	Name        string
	Waypoints   []geo.Coordinate
	DistanceKm  float64
	DurationMin int
	SafetyScore float64

	// RiskLevel is optional. When set it must agree with SafetyScore.
	RiskLevel RiskLevel
}

// NewRoute validates in and returns a Route whose risk level is derived from its score.
// Every failure wraps ErrInvariantViolation.
func NewRoute(in RouteInput) (Route, error) {
	if len(in.Waypoints) < 2 {
		return Route{}, invariantf(in.ID, "route needs at least 2 waypoints, got %d", len(in.Waypoints))
	}
	for i, wp := range in.Waypoints {
		if err := wp.Validate(fmt.Sprintf("waypoints[%d]", i)); err != nil {
			return Route{}, invariantf(in.ID, "%v", err)
		}
	}
	if math.IsNaN(in.SafetyScore) || in.SafetyScore < 0 || in.SafetyScore > 100 {
		return Route{}, invariantf(in.ID, "safety score %v outside [0, 100]", in.SafetyScore)
	}
	if math.IsNaN(in.DistanceKm) || in.DistanceKm < 0 {
		return Route{}, invariantf(in.ID, "negative distance %v", in.DistanceKm)
	}
	if in.DurationMin < 0 {
		return Route{}, invariantf(in.ID, "negative duration %d", in.DurationMin)
	}

	level := RiskLevelForScore(in.SafetyScore)
	if in.RiskLevel != "" && in.RiskLevel != level {
		return Route{}, invariantf(in.ID, "risk level %q disagrees with score %.2f (want %q)",
			in.RiskLevel, in.SafetyScore, level)
	}

	name := in.Name
	if name == "" {
		name = fmt.Sprintf("Route %d", in.ID)
	}

	waypoints := make([]geo.Coordinate, len(in.Waypoints))
	copy(waypoints, in.Waypoints)

	return Route{
		ID:          in.ID,
		Name:        name,
		Waypoints:   waypoints,
		DistanceKm:  in.DistanceKm,
		DurationMin: in.DurationMin,
		SafetyScore: in.SafetyScore,
		RiskLevel:   level,
	}, nil
}

func invariantf(routeID int, format string, args ...any) error {
	return fmt.Errorf("%w: route %d: %s", ErrInvariantViolation, routeID, fmt.Sprintf(format, args...))
}

// Origin returns the first waypoint.
func (r *Route) Origin() geo.Coordinate { return r.Waypoints[0] }

// Destination returns the last waypoint.
func (r *Route) Destination() geo.Coordinate { return r.Waypoints[len(r.Waypoints)-1] }

// Polyline returns the waypoints as an encoded polyline.
func (r *Route) Polyline() string { return geo.EncodePolyline(r.Waypoints) }

// TravelContext is the input to scoring.
type TravelContext struct {
	Origin      geo.Coordinate
	Destination geo.Coordinate
	At          time.Time
	Hour        int // [0, 23] in At's location
	IsWeekend   bool
}

// NewTravelContext validates both endpoints and derives hour and weekend flag from at.
// A zero at means now.
func NewTravelContext(origin, destination geo.Coordinate, at time.Time) (TravelContext, error) {
	if err := origin.Validate("origin"); err != nil {
		return TravelContext{}, err
	}
	if err := destination.Validate("destination"); err != nil {
		return TravelContext{}, err
	}
	if at.IsZero() {
		at = time.Now()
	}

	wd := at.Weekday()
	return TravelContext{
		Origin:      origin,
		Destination: destination,
		At:          at,
		Hour:        at.Hour(),
		IsWeekend:   wd == time.Saturday || wd == time.Sunday,
	}, nil
}

// IsNight reports whether the context falls in the 22:00-05:59 window.
func (tc TravelContext) IsNight() bool {
	return tc.Hour >= 22 || tc.Hour <= 5
}

// Error provides detailed error information from a scorer.
type Error struct {
	Scorer  string // Scorer that generated the error
	Code    string // Error code, e.g. HTTP_503 or DECODE
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrScorerUnavailable)
}
