package monitor

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hershield/hershield/internal/alert"
	"github.com/hershield/hershield/internal/geo"
)

var delhiCentre = geo.Coordinate{Lat: 28.6139, Lon: 77.2090}

// logAlerter dispatches through a real dispatcher into its own log.
type logAlerter struct {
	dispatcher *alert.Dispatcher
	log        *alert.Log
}

func newLogAlerter() *logAlerter {
	return &logAlerter{
		dispatcher: alert.NewDispatcher(alert.DispatcherConfig{Logger: zerolog.Nop()}),
		log:        alert.NewLog(),
	}
}

func (a *logAlerter) Raise(ctx context.Context, kind alert.Kind, loc geo.Coordinate) (alert.Event, alert.Delivery) {
	return a.dispatcher.Dispatch(ctx, a.log, alert.Request{Kind: kind, UserID: "user-1", Location: loc})
}

type countingDeviations struct {
	mu sync.Mutex
	n  int
}

func (c *countingDeviations) RecordDeviation(context.Context) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func newTestSession(t *testing.T) (*Session, *logAlerter) {
	t.Helper()
	alerter := newLogAlerter()
	return NewSession(SessionConfig{
		Alerter:         alerter,
		DefaultLocation: delhiCentre,
		Logger:          zerolog.Nop(),
	}), alerter
}

func TestSession_StartWithoutRouteFails(t *testing.T) {
	s, _ := newTestSession(t)

	err := s.Start()
	assert.ErrorIs(t, err, ErrNoRouteSelected)
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_Lifecycle(t *testing.T) {
	s, _ := newTestSession(t)
	route := mustRoute(t, 1, connaughtPlace, hauzKhas)

	s.Select(route)
	assert.Equal(t, StateIdle, s.State(), "selecting does not start tracking")
	assert.Same(t, route, s.Route(), "the session references the route")

	require.NoError(t, s.Start())
	assert.Equal(t, StateActive, s.State())
	snap := s.Snapshot()
	require.NotNil(t, snap.StartedAt)
	assert.Same(t, route, snap.Route)

	s.Stop()
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Route())
	assert.False(t, s.Deviated())
	assert.Nil(t, s.Snapshot().StartedAt)

	s.Stop()
	assert.Equal(t, StateIdle, s.State(), "stop is a no-op when idle")
}

func TestSession_TickNeverChangesState(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	far := geo.Coordinate{Lat: 28.70, Lon: 77.10}

	res, err := s.Tick(ctx, far)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, res.State)
	assert.False(t, res.Deviated, "idle sessions do not evaluate deviation")
	assert.Nil(t, res.Measurement)

	s.Select(mustRoute(t, 1, connaughtPlace, hauzKhas))
	require.NoError(t, s.Start())

	for _, pos := range []geo.Coordinate{connaughtPlace, far, hauzKhas, far} {
		res, err := s.Tick(ctx, pos)
		require.NoError(t, err)
		assert.Equal(t, StateActive, res.State)
		assert.Equal(t, StateActive, s.State())
	}
}

func TestSession_DeviationAlertOnEdgeOnly(t *testing.T) {
	ctx := context.Background()
	alerter := newLogAlerter()
	deviations := &countingDeviations{}
	s := NewSession(SessionConfig{Alerter: alerter, Metrics: deviations})

	route := mustRoute(t, 1, geo.Coordinate{Lat: 28.6000, Lon: 77.2000}, hauzKhas)
	s.Select(route)
	require.NoError(t, s.Start())

	off := geo.Coordinate{Lat: 28.61, Lon: 77.22}

	res, err := s.Tick(ctx, off)
	require.NoError(t, err)
	assert.True(t, res.Deviated)
	require.NotNil(t, res.Alert)
	assert.Equal(t, alert.KindDeviation, res.Alert.Kind)
	assert.Equal(t, off, res.Alert.Location)
	require.NotNil(t, res.Delivery)

	res, err = s.Tick(ctx, off)
	require.NoError(t, err)
	assert.True(t, res.Deviated, "tick is idempotent for the same position")
	assert.Nil(t, res.Alert, "no repeated alert while still deviated")
	assert.Zero(t, res.MovedMeters)
	assert.False(t, res.SignificantMove)

	res, err = s.Tick(ctx, route.Waypoints[0])
	require.NoError(t, err)
	assert.False(t, res.Deviated, "back on route clears the flag")

	res, err = s.Tick(ctx, off)
	require.NoError(t, err)
	assert.NotNil(t, res.Alert, "a second departure raises a new alert")

	assert.Equal(t, 2, alerter.log.Len())
	assert.Equal(t, 2, deviations.n)
}

func TestSession_TickReportsMovement(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)

	res, err := s.Tick(ctx, connaughtPlace)
	require.NoError(t, err)
	assert.Zero(t, res.MovedMeters, "first fix has no movement")

	res, err = s.Tick(ctx, geo.Offset(connaughtPlace, 5, 0))
	require.NoError(t, err)
	assert.InDelta(t, 5, res.MovedMeters, 1e-6)
	assert.False(t, res.SignificantMove)

	res, err = s.Tick(ctx, geo.Offset(connaughtPlace, 25, 0))
	require.NoError(t, err)
	assert.InDelta(t, 20, res.MovedMeters, 1e-6)
	assert.True(t, res.SignificantMove)
}

func TestSession_TickRejectsInvalidPosition(t *testing.T) {
	s, _ := newTestSession(t)
	s.Select(mustRoute(t, 1, connaughtPlace, hauzKhas))
	require.NoError(t, s.Start())

	_, err := s.Tick(context.Background(), geo.Coordinate{Lat: 91, Lon: 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)
	assert.Nil(t, s.Snapshot().LastPosition)
	assert.Equal(t, StateActive, s.State())
}

func TestSession_SelectWhileActiveStops(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	first := mustRoute(t, 1, connaughtPlace, hauzKhas)
	second := mustRoute(t, 2, hauzKhas, connaughtPlace)

	s.Select(first)
	require.NoError(t, s.Start())
	_, err := s.Tick(ctx, geo.Coordinate{Lat: 28.70, Lon: 77.10})
	require.NoError(t, err)
	require.True(t, s.Deviated())

	s.Select(second)
	assert.Equal(t, StateIdle, s.State())
	assert.False(t, s.Deviated())
	assert.Same(t, second, s.Route())
}

func TestSession_StartWhileActiveRestarts(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	route := mustRoute(t, 1, connaughtPlace, hauzKhas)

	s.Select(route)
	require.NoError(t, s.Start())
	_, err := s.Tick(ctx, geo.Coordinate{Lat: 28.70, Lon: 77.10})
	require.NoError(t, err)
	require.Equal(t, 1, s.Snapshot().Ticks)

	require.NoError(t, s.Start())
	snap := s.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.Same(t, route, snap.Route)
	assert.False(t, snap.Deviated)
	assert.Zero(t, snap.Ticks)
}

func TestSession_SOSFromIdle(t *testing.T) {
	s, alerter := newTestSession(t)
	before := alerter.log.Len()

	event, _, err := s.SOS(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, alert.KindSOS, event.Kind)
	assert.Equal(t, delhiCentre, event.Location, "no known position uses the default")
	assert.Equal(t, before+1, alerter.log.Len())
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_WithoutAlerterStillRaises(t *testing.T) {
	ctx := context.Background()
	s := NewSession(SessionConfig{DefaultLocation: delhiCentre})

	event, delivery, err := s.SOS(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, alert.KindSOS, event.Kind)
	assert.Equal(t, delhiCentre, event.Location)
	assert.NotEmpty(t, event.ID)
	assert.False(t, delivery.Degraded())

	s.Select(mustRoute(t, 1, connaughtPlace, hauzKhas))
	require.NoError(t, s.Start())
	res, err := s.Tick(ctx, geo.Coordinate{Lat: 28.70, Lon: 77.10})
	require.NoError(t, err)
	require.NotNil(t, res.Alert)
	assert.Equal(t, alert.KindDeviation, res.Alert.Kind)
}

func TestSession_SOSLocationPrecedence(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	s.Select(mustRoute(t, 1, connaughtPlace, hauzKhas))
	require.NoError(t, s.Start())

	_, err := s.Tick(ctx, hauzKhas)
	require.NoError(t, err)

	event, _, err := s.SOS(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, hauzKhas, event.Location, "last position is used")

	explicit := geo.Coordinate{Lat: 28.5245, Lon: 77.1855}
	event, _, err = s.SOS(ctx, &explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, event.Location)

	_, _, err = s.SOS(ctx, &geo.Coordinate{Lat: 0, Lon: 200})
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)

	assert.Equal(t, StateActive, s.State(), "SOS does not change state")
}
