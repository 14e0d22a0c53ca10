package safety

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/hershield/hershield/internal/geo"
)

// Fallback generation parameters.
const (
	fallbackRouteCount  = 3
	fallbackMinScore    = 40.0
	fallbackMaxScore    = 95.0
	fallbackNightBias   = -15.0
	fallbackWeekendBias = -5.0
	fallbackMinKm       = 5.0
	fallbackMaxKm       = 15.0
	fallbackMinMinutes  = 15
	fallbackMaxMinutes  = 45
	fallbackJitterDeg   = 0.01
)

// FallbackScorer synthesises plausible routes locally when no oracle answer is available.
// Output is a pure function of the travel context.
type FallbackScorer struct{}

// NewFallbackScorer creates a new fallback scorer.
func NewFallbackScorer() *FallbackScorer {
	return &FallbackScorer{}
}

// Name returns the scorer identifier.
func (f *FallbackScorer) Name() string {
	return "fallback"
}

// Score returns three routes from origin through a jittered midpoint to destination.
func (f *FallbackScorer) Score(_ context.Context, tc TravelContext) ([]Route, error) {
	rng := rand.New(rand.NewPCG(fallbackSeed(tc)))

	bias := 0.0
	if tc.IsNight() {
		bias += fallbackNightBias
	}
	if tc.IsWeekend {
		bias += fallbackWeekendBias
	}

	mid := geo.Coordinate{
		Lat: (tc.Origin.Lat + tc.Destination.Lat) / 2,
		Lon: (tc.Origin.Lon + tc.Destination.Lon) / 2,
	}

	routes := make([]Route, 0, fallbackRouteCount)
	for i := 1; i <= fallbackRouteCount; i++ {
		score := uniform(rng, fallbackMinScore, fallbackMaxScore) + bias
		score = round(clamp(score, 0, 100), 2)

		km := round(uniform(rng, fallbackMinKm, fallbackMaxKm), 1)
		minutes := fallbackMinMinutes + rng.IntN(fallbackMaxMinutes-fallbackMinMinutes+1)

		via := geo.Coordinate{
			Lat: clamp(mid.Lat+uniform(rng, -fallbackJitterDeg, fallbackJitterDeg), -90, 90),
			Lon: clamp(mid.Lon+uniform(rng, -fallbackJitterDeg, fallbackJitterDeg), -180, 180),
		}

		route, err := NewRoute(RouteInput{
			ID:          i,
			Name:        fmt.Sprintf("Route %d", i),
			Waypoints:   []geo.Coordinate{tc.Origin, via, tc.Destination},
			DistanceKm:  km,
			DurationMin: minutes,
			SafetyScore: score,
		})
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}

	return routes, nil
}

// fallbackSeed hashes the endpoints, the calendar day and the hour so the same
// request always yields the same routes.
func fallbackSeed(tc TravelContext) (uint64, uint64) {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range []float64{tc.Origin.Lat, tc.Origin.Lon, tc.Destination.Lat, tc.Destination.Lon} {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	y, m, d := tc.At.Date()
	fmt.Fprintf(h, "%04d-%02d-%02d:%02d:%t", y, m, d, tc.Hour, tc.IsWeekend)

	sum := h.Sum64()
	return sum, sum ^ 0x9e3779b97f4a7c15
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
