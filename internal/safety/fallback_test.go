package safety

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hershield/hershield/internal/geo"
)

func travelContext(t *testing.T, at time.Time) TravelContext {
	t.Helper()
	tc, err := NewTravelContext(connaughtPlace, hauzKhas, at)
	require.NoError(t, err)
	return tc
}

func TestFallbackScorer_Shape(t *testing.T) {
	// Wednesday afternoon: no adjustments.
	tc := travelContext(t, time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC))

	routes, err := NewFallbackScorer().Score(context.Background(), tc)
	require.NoError(t, err)
	require.Len(t, routes, 3)

	for i, r := range routes {
		assert.Equal(t, i+1, r.ID)
		assert.GreaterOrEqual(t, r.SafetyScore, 40.0)
		assert.LessOrEqual(t, r.SafetyScore, 95.0)
		assert.Equal(t, RiskLevelForScore(r.SafetyScore), r.RiskLevel)

		assert.GreaterOrEqual(t, r.DistanceKm, 5.0)
		assert.LessOrEqual(t, r.DistanceKm, 15.0)
		assert.GreaterOrEqual(t, r.DurationMin, 15)
		assert.LessOrEqual(t, r.DurationMin, 45)

		require.Len(t, r.Waypoints, 3)
		assert.Equal(t, connaughtPlace, r.Origin())
		assert.Equal(t, hauzKhas, r.Destination())

		mid := geo.Coordinate{
			Lat: (connaughtPlace.Lat + hauzKhas.Lat) / 2,
			Lon: (connaughtPlace.Lon + hauzKhas.Lon) / 2,
		}
		assert.InDelta(t, mid.Lat, r.Waypoints[1].Lat, 0.01)
		assert.InDelta(t, mid.Lon, r.Waypoints[1].Lon, 0.01)
	}
}

func TestFallbackScorer_Deterministic(t *testing.T) {
	tc := travelContext(t, time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC))
	scorer := NewFallbackScorer()

	first, err := scorer.Score(context.Background(), tc)
	require.NoError(t, err)
	second, err := scorer.Score(context.Background(), tc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFallbackScorer_NightAndWeekendLowerScores(t *testing.T) {
	scorer := NewFallbackScorer()

	// Saturday 23:00 gets both adjustments; the score can never exceed 95 - 20.
	tc := travelContext(t, time.Date(2025, 3, 15, 23, 0, 0, 0, time.UTC))
	routes, err := scorer.Score(context.Background(), tc)
	require.NoError(t, err)

	for _, r := range routes {
		assert.LessOrEqual(t, r.SafetyScore, 75.0)
		assert.GreaterOrEqual(t, r.SafetyScore, 20.0)
		assert.Equal(t, RiskLevelForScore(r.SafetyScore), r.RiskLevel)
	}
}

func TestFallbackScorer_Name(t *testing.T) {
	assert.Equal(t, "fallback", NewFallbackScorer().Name())
}
