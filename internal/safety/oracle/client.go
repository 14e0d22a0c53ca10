// Package oracle provides a client for the external safety prediction service.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/geo"
	"github.com/hershield/hershield/internal/provider/resilience"
	"github.com/hershield/hershield/internal/safety"
)

const (
	// ScorerName identifies this scorer.
	ScorerName = "safety-oracle"

	// DefaultBaseURL is the prediction service base URL.
	DefaultBaseURL = "http://localhost:5000"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 2 * time.Second

	maxResponseBytes = 1 << 20
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the oracle client.
type ClientConfig struct {
	// BaseURL is the service base URL (optional, defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with a single retry.
	HTTPClient HTTPDoer

	// Timeout is the per-attempt request timeout (optional, defaults to 2s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client scores routes by calling POST /predict_safety.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ safety.Scorer = (*Client)(nil)

// NewClient creates a new oracle client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		profile := resilience.ScoringProfile
		profile.Timeout = timeout
		httpClient = resilience.NewClient(ScorerName, profile, resilience.Options{
			Registry: cfg.Registry,
			Logger:   cfg.Logger,
		})
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the scorer name.
func (c *Client) Name() string {
	return ScorerName
}

// Score requests scored routes for the travel context.
func (c *Client) Score(ctx context.Context, tc safety.TravelContext) ([]safety.Route, error) {
	weekend := 0
	if tc.IsWeekend {
		weekend = 1
	}

	body, err := json.Marshal(predictRequest{
		StartLat:  tc.Origin.Lat,
		StartLon:  tc.Origin.Lon,
		EndLat:    tc.Destination.Lat,
		EndLon:    tc.Destination.Lon,
		Hour:      tc.Hour,
		IsWeekend: weekend,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict_safety", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Float64("origin_lat", tc.Origin.Lat).
		Float64("origin_lon", tc.Origin.Lon).
		Float64("dest_lat", tc.Destination.Lat).
		Float64("dest_lon", tc.Destination.Lon).
		Int("hour", tc.Hour).
		Int("is_weekend", weekend).
		Msg("requesting safety prediction")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &safety.Error{
			Scorer:  ScorerName,
			Code:    "REQUEST_FAILED",
			Message: "failed to reach safety oracle",
			Err:     fmt.Errorf("%w: %w", safety.ErrScorerUnavailable, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &safety.Error{
			Scorer:  ScorerName,
			Code:    "READ_FAILED",
			Message: "reading oracle response",
			Err:     fmt.Errorf("%w: %w", safety.ErrScorerUnavailable, err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode)
	}

	var pr predictResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return nil, &safety.Error{
			Scorer:  ScorerName,
			Code:    "DECODE",
			Message: "malformed oracle response",
			Err:     fmt.Errorf("%w: %w", safety.ErrScorerUnavailable, err),
		}
	}

	if pr.Status != statusSuccess {
		msg := pr.Message
		if msg == "" {
			msg = fmt.Sprintf("oracle returned status %q", pr.Status)
		}
		return nil, &safety.Error{
			Scorer:  ScorerName,
			Code:    "STATUS_" + pr.Status,
			Message: msg,
			Err:     safety.ErrScorerRejected,
		}
	}

	routes, err := toRoutes(pr.Routes)
	if err != nil {
		return nil, &safety.Error{
			Scorer:  ScorerName,
			Code:    "INVALID_ROUTE",
			Message: "oracle returned an invalid route",
			Err:     err,
		}
	}

	c.logger.Debug().
		Int("route_count", len(routes)).
		Msg("received safety prediction")

	return routes, nil
}

// handleErrorResponse maps non-200 responses to scorer errors.
func (c *Client) handleErrorResponse(statusCode int) error {
	if statusCode >= 500 || statusCode == http.StatusTooManyRequests {
		return &safety.Error{
			Scorer:  ScorerName,
			Code:    fmt.Sprintf("HTTP_%d", statusCode),
			Message: "safety oracle is temporarily unavailable",
			Err:     safety.ErrScorerUnavailable,
		}
	}
	return &safety.Error{
		Scorer:  ScorerName,
		Code:    fmt.Sprintf("HTTP_%d", statusCode),
		Message: fmt.Sprintf("safety oracle returned status %d", statusCode),
		Err:     safety.ErrScorerRejected,
	}
}

// toRoutes converts wire routes into validated domain routes. Waypoints are
// taken from the explicit pair list, or decoded from the polyline when the
// list is absent. Route IDs must be unique within one answer.
func toRoutes(wire []predictRoute) ([]safety.Route, error) {
	routes := make([]safety.Route, 0, len(wire))
	seen := make(map[int]struct{}, len(wire))
	for i := range wire {
		w := &wire[i]

		if _, dup := seen[w.RouteID]; dup {
			return nil, fmt.Errorf("%w: route %d: duplicate route id", safety.ErrInvariantViolation, w.RouteID)
		}
		seen[w.RouteID] = struct{}{}

		waypoints, err := wireWaypoints(w)
		if err != nil {
			return nil, fmt.Errorf("%w: route %d: %w", safety.ErrInvariantViolation, w.RouteID, err)
		}

		route, err := safety.NewRoute(safety.RouteInput{
			ID:          w.RouteID,
			Name:        w.RouteName,
			Waypoints:   waypoints,
			DistanceKm:  w.DistanceKm,
			DurationMin: int(math.Round(w.DurationMin)),
			SafetyScore: w.SafetyScore,
			RiskLevel:   safety.RiskLevel(w.RiskLevel),
		})
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, nil
}

func wireWaypoints(w *predictRoute) ([]geo.Coordinate, error) {
	if len(w.Waypoints) == 0 && w.Polyline != "" {
		return geo.DecodePolyline(w.Polyline)
	}

	points := make([]geo.Coordinate, 0, len(w.Waypoints))
	for j, pair := range w.Waypoints {
		if len(pair) != 2 {
			return nil, fmt.Errorf("waypoint %d has %d components, want [lat, lon]", j, len(pair))
		}
		points = append(points, geo.Coordinate{Lat: pair[0], Lon: pair[1]})
	}
	return points, nil
}
