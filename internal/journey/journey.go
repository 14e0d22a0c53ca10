// Package journey holds the per-user context: the current plan, the monitoring
// session, trusted contacts and the alert log.
package journey

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/alert"
	"github.com/hershield/hershield/internal/contact"
	"github.com/hershield/hershield/internal/geo"
	"github.com/hershield/hershield/internal/geocode"
	"github.com/hershield/hershield/internal/monitor"
	"github.com/hershield/hershield/internal/safety"
)

var (
	// ErrNoRoutes is returned when a route is requested before any plan exists.
	ErrNoRoutes = errors.New("no routes planned")

	// ErrRouteNotFound is returned when a route ID is not part of the current plan.
	ErrRouteNotFound = errors.New("route not found")

	// ErrPlanSuperseded is returned when a newer plan request finished first.
	ErrPlanSuperseded = errors.New("plan superseded by a newer request")
)

// Geocoder resolves free text to coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, text string) (geocode.Resolution, error)
}

// Scorer produces ranked routes between two coordinates.
type Scorer interface {
	Score(ctx context.Context, origin, destination geo.Coordinate, at time.Time) (*safety.ScoreResult, error)
}

// PlanRequest is a planning request in free text.
type PlanRequest struct {
	Origin      string
	Destination string

	// DepartureTime defaults to now.
	DepartureTime time.Time
}

// Plan is the outcome of a successful planning request.
type Plan struct {
	Sequence    uint64
	Origin      geocode.Resolution
	Destination geocode.Resolution
	Routes      safety.RouteSet
	Context     safety.TravelContext
	Source      safety.Source
	Warnings    []string
	PlannedAt   time.Time
}

// Journey is the context object of one user. All methods are safe for concurrent use;
// state-changing operations are serialised.
type Journey struct {
	userID     string
	geocoder   Geocoder
	scorer     Scorer
	dispatcher *alert.Dispatcher
	logger     zerolog.Logger
	now        func() time.Time

	seq atomic.Uint64

	mu       sync.Mutex
	plan     *Plan
	session  *monitor.Session
	contacts *contact.Book
	alerts   *alert.Log
}

func newJourney(userID string, cfg Config) *Journey {
	logger := cfg.Logger.With().Str("user_id", userID).Logger()
	j := &Journey{
		userID:     userID,
		geocoder:   cfg.Geocoder,
		scorer:     cfg.Scorer,
		dispatcher: cfg.Dispatcher,
		logger:     logger,
		now:        time.Now,
		contacts:   contact.NewBook(),
		alerts:     alert.NewLog(),
	}
	j.session = monitor.NewSession(monitor.SessionConfig{
		Monitor:         cfg.Monitor,
		Alerter:         j,
		DefaultLocation: cfg.DefaultLocation,
		Metrics:         cfg.Metrics,
		Logger:          logger,
	})
	return j
}

// UserID returns the owner of the journey.
func (j *Journey) UserID() string { return j.userID }

// Plan resolves both endpoints, scores and ranks routes, and makes them current.
// Only the most recent request may update the journey: an older request that
// finishes later returns ErrPlanSuperseded and its result is discarded.
func (j *Journey) Plan(ctx context.Context, req PlanRequest) (*Plan, error) {
	seq := j.seq.Add(1)

	origin, err := j.geocoder.Resolve(ctx, req.Origin)
	if err != nil {
		return nil, fmt.Errorf("resolving origin: %w", err)
	}
	destination, err := j.geocoder.Resolve(ctx, req.Destination)
	if err != nil {
		return nil, fmt.Errorf("resolving destination: %w", err)
	}

	at := req.DepartureTime
	if at.IsZero() {
		at = j.now()
	}

	result, err := j.scorer.Score(ctx, origin.Coordinate, destination.Coordinate, at)
	if err != nil {
		return nil, err
	}

	var warnings []string
	if origin.Warning != nil {
		warnings = append(warnings, fmt.Sprintf("origin %q not found; using default location", req.Origin))
	}
	if destination.Warning != nil {
		warnings = append(warnings, fmt.Sprintf("destination %q not found; using default location", req.Destination))
	}
	warnings = append(warnings, result.Warnings...)

	plan := &Plan{
		Sequence:    seq,
		Origin:      origin,
		Destination: destination,
		Routes:      result.Routes,
		Context:     result.Context,
		Source:      result.Source,
		Warnings:    warnings,
		PlannedAt:   j.now().UTC(),
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if latest := j.seq.Load(); seq != latest {
		j.logger.Debug().
			Uint64("sequence", seq).
			Uint64("latest", latest).
			Msg("discarding superseded plan")
		return nil, ErrPlanSuperseded
	}
	j.plan = plan

	j.logger.Info().
		Str("origin", req.Origin).
		Str("destination", req.Destination).
		Str("source", string(plan.Source)).
		Int("routes", plan.Routes.Len()).
		Int("warnings", len(plan.Warnings)).
		Msg("routes planned")

	return plan, nil
}

// CurrentPlan returns the latest plan, or nil.
func (j *Journey) CurrentPlan() *Plan {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.plan
}

// Route returns a route of the current plan.
func (j *Journey) Route(id int) (*safety.Route, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.routeLocked(id)
}

func (j *Journey) routeLocked(id int) (*safety.Route, error) {
	if j.plan == nil || j.plan.Routes.IsEmpty() {
		return nil, ErrNoRoutes
	}
	route, ok := j.plan.Routes.Route(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrRouteNotFound, id)
	}
	return route, nil
}

// SelectRoute selects a route of the current plan for monitoring.
// An active monitoring run is stopped.
func (j *Journey) SelectRoute(id int) (*safety.Route, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	route, err := j.routeLocked(id)
	if err != nil {
		return nil, err
	}
	j.session.Select(route)
	return route, nil
}

// StartMonitoring starts tracking the selected route.
func (j *Journey) StartMonitoring() (monitor.Snapshot, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.session.Start(); err != nil {
		return j.session.Snapshot(), err
	}
	return j.session.Snapshot(), nil
}

// StopMonitoring stops tracking.
func (j *Journey) StopMonitoring() monitor.Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.session.Stop()
	return j.session.Snapshot()
}

// Tick records a live position.
func (j *Journey) Tick(ctx context.Context, pos geo.Coordinate) (monitor.TickResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.session.Tick(ctx, pos)
}

// Monitoring returns the monitoring read model.
func (j *Journey) Monitoring() monitor.Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.session.Snapshot()
}

// Monitor returns the deviation settings of the session.
func (j *Journey) Monitor() monitor.DeviationMonitor {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.session.Monitor()
}

// SOS raises an SOS alert. See monitor.Session.SOS for location precedence.
func (j *Journey) SOS(ctx context.Context, location *geo.Coordinate) (alert.Event, alert.Delivery, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.session.SOS(ctx, location)
}

// Raise dispatches an alert with the journey's contacts into its log.
// It is called by the session while the journey lock is held.
func (j *Journey) Raise(ctx context.Context, kind alert.Kind, location geo.Coordinate) (alert.Event, alert.Delivery) {
	return j.dispatcher.Dispatch(ctx, j.alerts, alert.Request{
		Kind:     kind,
		UserID:   j.userID,
		Location: location,
		Contacts: j.contacts.List(),
	})
}

// Alerts returns the n most recent alerts, oldest first.
func (j *Journey) Alerts(n int) []alert.Event {
	return j.alerts.Recent(n)
}

// AlertCount returns the number of recorded alerts.
func (j *Journey) AlertCount() int {
	return j.alerts.Len()
}

// AddContact adds a trusted contact.
func (j *Journey) AddContact(name, phone string) (contact.Contact, error) {
	return j.contacts.Add(name, phone)
}

// RemoveContact removes a trusted contact.
func (j *Journey) RemoveContact(id string) error {
	return j.contacts.Remove(id)
}

// Contacts lists trusted contacts in insertion order.
func (j *Journey) Contacts() []contact.Contact {
	return j.contacts.List()
}
