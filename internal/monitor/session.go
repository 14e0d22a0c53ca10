package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/alert"
	"github.com/hershield/hershield/internal/geo"
	"github.com/hershield/hershield/internal/safety"
)

// ErrNoRouteSelected is returned when monitoring starts without a selected route.
var ErrNoRouteSelected = errors.New("no route selected")

// SignificantMoveMeters is the movement above which a position update is reported as significant.
const SignificantMoveMeters = 10.0

// State is the monitoring state.
type State string

// Session states. Deviation is a flag on Active, not a state.
const (
	StateIdle   State = "IDLE"
	StateActive State = "ACTIVE"
)

// Alerter raises alerts on behalf of a session.
type Alerter interface {
	Raise(ctx context.Context, kind alert.Kind, location geo.Coordinate) (alert.Event, alert.Delivery)
}

// DeviationRecorder counts deviation edges.
type DeviationRecorder interface {
	RecordDeviation(ctx context.Context)
}

// SessionConfig holds configuration for a monitoring session.
type SessionConfig struct {
	// Monitor decides deviation. Zero value uses the defaults.
	Monitor DeviationMonitor

	// Alerter receives DEVIATION and SOS alerts. When nil, alerts are
	// recorded in a log owned by the session and sent nowhere.
	Alerter Alerter

	// DefaultLocation is used for SOS when no position is known.
	DefaultLocation geo.Coordinate

	// Metrics counts deviations (optional).
	Metrics DeviationRecorder

	// Logger for session transitions.
	Logger zerolog.Logger
}

// TickResult describes the effect of one position update.
type TickResult struct {
	Position        geo.Coordinate
	MovedMeters     float64
	SignificantMove bool
	State           State
	Deviated        bool

	// Measurement is set while Active.
	Measurement *Measurement

	// Alert is set when this tick raised a DEVIATION alert.
	Alert    *alert.Event
	Delivery *alert.Delivery
}

// Snapshot is a read model of the session.
type Snapshot struct {
	State        State
	Route        *safety.Route
	LastPosition *geo.Coordinate
	Deviated     bool
	StartedAt    *time.Time
	Ticks        int
	Measurement  *Measurement
}

// Session is the monitoring state machine for one user.
// It is not safe for concurrent use; the owning journey serialises access.
type Session struct {
	monitor  DeviationMonitor
	alerter  Alerter
	fallback geo.Coordinate
	metrics  DeviationRecorder
	logger   zerolog.Logger
	now      func() time.Time

	state       State
	route       *safety.Route
	last        *geo.Coordinate
	deviated    bool
	startedAt   time.Time
	ticks       int
	measurement *Measurement
}

// NewSession creates an idle session.
func NewSession(cfg SessionConfig) *Session {
	m := cfg.Monitor
	m = NewDeviationMonitor(m.ThresholdMeters, m.Strategy)

	alerter := cfg.Alerter
	if alerter == nil {
		alerter = &localAlerter{
			dispatcher: alert.NewDispatcher(alert.DispatcherConfig{Logger: cfg.Logger}),
			log:        alert.NewLog(),
		}
	}

	return &Session{
		monitor:  m,
		alerter:  alerter,
		fallback: cfg.DefaultLocation,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      time.Now,
		state:    StateIdle,
	}
}

// localAlerter keeps alerts of a session that has no journey behind it.
type localAlerter struct {
	dispatcher *alert.Dispatcher
	log        *alert.Log
}

func (a *localAlerter) Raise(ctx context.Context, kind alert.Kind, location geo.Coordinate) (alert.Event, alert.Delivery) {
	return a.dispatcher.Dispatch(ctx, a.log, alert.Request{Kind: kind, Location: location})
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Deviated reports whether the last tick was off route.
func (s *Session) Deviated() bool { return s.deviated }

// Route returns the selected route, if any.
func (s *Session) Route() *safety.Route { return s.route }

// Monitor returns the deviation monitor in use.
func (s *Session) Monitor() DeviationMonitor { return s.monitor }

// Select stores route for monitoring. An active run is stopped first.
// A nil route clears the selection.
func (s *Session) Select(route *safety.Route) {
	if s.state == StateActive {
		s.Stop()
	}
	s.route = route
	if route != nil {
		s.logger.Debug().Int("route_id", route.ID).Msg("route selected")
	}
}

// Start begins monitoring the selected route. An active run is replaced by a fresh one.
func (s *Session) Start() error {
	if s.route == nil {
		return ErrNoRouteSelected
	}
	if s.state == StateActive {
		route := s.route
		s.Stop()
		s.route = route
	}

	s.state = StateActive
	s.deviated = false
	s.ticks = 0
	s.measurement = nil
	s.startedAt = s.now().UTC()

	s.logger.Info().
		Int("route_id", s.route.ID).
		Str("route_name", s.route.Name).
		Msg("monitoring started")
	return nil
}

// Stop ends monitoring and clears the route and deviation flag. No-op when idle.
func (s *Session) Stop() {
	if s.state != StateActive {
		return
	}

	s.logger.Info().
		Int("route_id", s.route.ID).
		Int("ticks", s.ticks).
		Dur("duration", s.now().Sub(s.startedAt)).
		Msg("monitoring stopped")

	s.state = StateIdle
	s.route = nil
	s.deviated = false
	s.ticks = 0
	s.measurement = nil
	s.startedAt = time.Time{}
}

// Tick records a position update. While active it re-evaluates deviation and
// raises a DEVIATION alert when the position first leaves the route.
// Tick never changes the session state.
func (s *Session) Tick(ctx context.Context, pos geo.Coordinate) (TickResult, error) {
	if err := pos.Validate("position"); err != nil {
		return TickResult{}, err
	}

	res := TickResult{Position: pos}
	if s.last != nil {
		res.MovedMeters = geo.Distance(*s.last, pos)
		res.SignificantMove = res.MovedMeters > SignificantMoveMeters
	}
	p := pos
	s.last = &p

	if s.state == StateActive {
		s.ticks++
		ms := s.monitor.Measure(pos, s.route)
		s.measurement = &ms
		res.Measurement = &ms

		wasDeviated := s.deviated
		s.deviated = s.monitor.deviated(ms)

		switch {
		case s.deviated && !wasDeviated:
			s.logger.Warn().
				Int("route_id", s.route.ID).
				Float64("distance_m", ms.DistanceMeters).
				Float64("threshold_m", s.monitor.ThresholdMeters).
				Msg("deviation from route detected")
			if s.metrics != nil {
				s.metrics.RecordDeviation(ctx)
			}
			event, delivery := s.alerter.Raise(ctx, alert.KindDeviation, pos)
			res.Alert = &event
			res.Delivery = &delivery
		case !s.deviated && wasDeviated:
			s.logger.Info().
				Int("route_id", s.route.ID).
				Float64("distance_m", ms.DistanceMeters).
				Msg("back on route")
		}
	}

	res.State = s.state
	res.Deviated = s.deviated
	return res, nil
}

// SOS raises an SOS alert in any state without changing it. The location is
// the explicit one when given, else the last known position, else the default.
func (s *Session) SOS(ctx context.Context, location *geo.Coordinate) (alert.Event, alert.Delivery, error) {
	var loc geo.Coordinate
	switch {
	case location != nil:
		if err := location.Validate("location"); err != nil {
			return alert.Event{}, alert.Delivery{}, err
		}
		loc = *location
	case s.last != nil:
		loc = *s.last
	default:
		loc = s.fallback
	}

	s.logger.Warn().
		Str("state", string(s.state)).
		Float64("lat", loc.Lat).
		Float64("lon", loc.Lon).
		Msg("SOS triggered")

	event, delivery := s.alerter.Raise(ctx, alert.KindSOS, loc)
	return event, delivery, nil
}

// Snapshot returns a read model of the session.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		State:    s.state,
		Route:    s.route,
		Deviated: s.deviated,
		Ticks:    s.ticks,
	}
	if s.last != nil {
		p := *s.last
		snap.LastPosition = &p
	}
	if s.state == StateActive {
		t := s.startedAt
		snap.StartedAt = &t
	}
	if s.measurement != nil {
		m := *s.measurement
		snap.Measurement = &m
	}
	return snap
}
