package safety

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/hershield/hershield/internal/geo"
)

// Source identifies where a set of scored routes came from.
type Source string

const (
	SourceOracle     Source = "oracle"
	SourceCache      Source = "cache"
	SourceStaleCache Source = "stale-cache"
	SourceFallback   Source = "fallback"
)

// Advisory warnings attached to a ScoreResult.
const (
	WarningStaleScores = "safety oracle unavailable; showing recently cached safety scores"
	WarningFallback    = "safety oracle unavailable; showing locally estimated routes"
)

// PlanRecorder records planning outcomes. telemetry.SafetyMetrics implements it.
type PlanRecorder interface {
	RecordPlan(ctx context.Context, source string)
}

// ServiceConfig holds configuration for the safety service.
type ServiceConfig struct {
	// Oracle is the primary scorer. When nil every request uses Fallback.
	Oracle Scorer

	// Fallback scores routes when the oracle fails (default: FallbackScorer).
	Fallback Scorer

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics receives one record per successful Score call. Optional.
	Metrics PlanRecorder

	// OracleTimeout bounds each oracle call (default: 2 seconds).
	OracleTimeout time.Duration

	// CacheTTL is how long oracle answers are served without refetching (default: 5 minutes).
	CacheTTL time.Duration

	// CacheGridSize is the size of cache grid cells in degrees (default: 0.001 ~ 110m).
	// Requests whose endpoints share cells and whose hour and weekend flag match share cached scores.
	CacheGridSize float64

	// StaleIfErrorTTL allows serving stale oracle answers on oracle errors (default: 30 minutes).
	StaleIfErrorTTL time.Duration

	// CleanupInterval is how often to clean up expired entries (default: 5 minutes).
	CleanupInterval time.Duration
}

// ScoreResult is the outcome of a planning request.
type ScoreResult struct {
	Routes   RouteSet
	Context  TravelContext
	Source   Source
	Scorer   string
	Warnings []string
}

// Service scores and ranks routes, preferring the oracle and degrading to cache then fallback.
type Service struct {
	oracle          Scorer
	fallback        Scorer
	logger          zerolog.Logger
	metrics         PlanRecorder
	oracleTimeout   time.Duration
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	cleanupInterval time.Duration

	inflight singleflight.Group

	mu          sync.RWMutex
	cache       map[string]*cachedRoutes
	lastCleanup time.Time
}

type cachedRoutes struct {
	routes    []Route
	scorer    string
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new safety service.
func NewService(cfg ServiceConfig) *Service {
	fallback := cfg.Fallback
	if fallback == nil {
		fallback = NewFallbackScorer()
	}

	oracleTimeout := cfg.OracleTimeout
	if oracleTimeout == 0 {
		oracleTimeout = 2 * time.Second
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	cacheGridSize := cfg.CacheGridSize
	if cacheGridSize == 0 {
		cacheGridSize = 0.001
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 30 * time.Minute
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}

	return &Service{
		oracle:          cfg.Oracle,
		fallback:        fallback,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		oracleTimeout:   oracleTimeout,
		cacheTTL:        cacheTTL,
		cacheGridSize:   cacheGridSize,
		staleIfErrorTTL: staleIfErrorTTL,
		cleanupInterval: cleanupInterval,
		cache:           make(map[string]*cachedRoutes),
	}
}

// Score validates the endpoints, scores candidate routes and ranks them.
//
// Oracle failures never fail the call: a stale cached answer or the fallback
// scorer is used instead and a warning is attached. That includes oracle
// answers carrying a route that breaks an invariant; such routes are
// discarded, never repaired. Invalid coordinates fail with *geo.InputError.
func (s *Service) Score(ctx context.Context, origin, destination geo.Coordinate, at time.Time) (*ScoreResult, error) {
	tc, err := NewTravelContext(origin, destination, at)
	if err != nil {
		return nil, err
	}

	var result *ScoreResult
	if s.oracle == nil {
		result, err = s.scoreFallback(ctx, tc, nil)
	} else {
		result, err = s.scoreWithOracle(ctx, tc)
	}
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordPlan(ctx, string(result.Source))
	}
	return result, nil
}

func (s *Service) scoreWithOracle(ctx context.Context, tc TravelContext) (*ScoreResult, error) {
	cacheKey := s.cacheKey(tc)

	if cached, ok := s.lookup(cacheKey); ok && time.Now().Before(cached.expiresAt) {
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("cache hit for safety scores")
		return s.result(tc, cached.routes, SourceCache, cached.scorer), nil
	}

	fetched, err := s.fetchScores(ctx, tc, cacheKey)
	if err == nil {
		return s.result(tc, fetched.routes, fetched.source, fetched.scorer), nil
	}

	if errors.Is(err, ErrInvariantViolation) {
		s.logger.Error().Err(err).
			Str("scorer", s.oracle.Name()).
			Msg("oracle returned a route that violates route invariants; discarding its answer")
	} else {
		s.logger.Warn().Err(err).
			Float64("origin_lat", tc.Origin.Lat).
			Float64("origin_lon", tc.Origin.Lon).
			Float64("dest_lat", tc.Destination.Lat).
			Float64("dest_lon", tc.Destination.Lon).
			Str("scorer", s.oracle.Name()).
			Msg("failed to fetch safety scores")
	}

	if cached, ok := s.lookup(cacheKey); ok && time.Now().Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
		s.logger.Warn().
			Time("fetched_at", cached.fetchedAt).
			Str("cache_key", cacheKey).
			Msg("serving stale safety scores due to oracle error")
		res := s.result(tc, cached.routes, SourceStaleCache, cached.scorer)
		res.Warnings = append(res.Warnings, WarningStaleScores)
		return res, nil
	}

	return s.scoreFallback(ctx, tc, err)
}

type fetchedRoutes struct {
	routes []Route
	scorer string
	source Source
}

// fetchScores asks the oracle for one cache key. Concurrent requests for the
// same key share a single call; requests for other keys and cache readers are
// never blocked behind it. The call is detached from ctx so one caller giving
// up does not fail the others, and it is still bounded by the oracle timeout.
func (s *Service) fetchScores(ctx context.Context, tc TravelContext, cacheKey string) (*fetchedRoutes, error) {
	ch := s.inflight.DoChan(cacheKey, func() (any, error) {
		if cached, ok := s.lookup(cacheKey); ok && time.Now().Before(cached.expiresAt) {
			return &fetchedRoutes{routes: cached.routes, scorer: cached.scorer, source: SourceCache}, nil
		}

		s.logger.Debug().
			Float64("origin_lat", tc.Origin.Lat).
			Float64("origin_lon", tc.Origin.Lon).
			Float64("dest_lat", tc.Destination.Lat).
			Float64("dest_lon", tc.Destination.Lon).
			Int("hour", tc.Hour).
			Bool("is_weekend", tc.IsWeekend).
			Str("scorer", s.oracle.Name()).
			Msg("requesting safety scores from oracle")

		oracleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.oracleTimeout)
		defer cancel()

		routes, err := s.oracle.Score(oracleCtx, tc)
		if err == nil && len(routes) == 0 {
			err = &Error{Scorer: s.oracle.Name(), Code: "EMPTY", Message: "oracle returned no routes", Err: ErrNoRoutes}
		}
		if err != nil {
			return nil, err
		}

		s.store(cacheKey, routes)
		return &fetchedRoutes{routes: routes, scorer: s.oracle.Name(), source: SourceOracle}, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*fetchedRoutes), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) lookup(cacheKey string) (*cachedRoutes, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cached, ok := s.cache[cacheKey]
	return cached, ok
}

func (s *Service) store(cacheKey string, routes []Route) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.cache[cacheKey] = &cachedRoutes{
		routes:    routes,
		scorer:    s.oracle.Name(),
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}

	s.logger.Debug().
		Str("cache_key", cacheKey).
		Int("route_count", len(routes)).
		Msg("cached safety scores")

	s.cleanupIfNeeded()
}

// scoreFallback runs the local scorer. Its output is never cached.
func (s *Service) scoreFallback(ctx context.Context, tc TravelContext, cause error) (*ScoreResult, error) {
	routes, err := s.fallback.Score(ctx, tc)
	if err != nil {
		return nil, fmt.Errorf("fallback scorer %s: %w", s.fallback.Name(), err)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("fallback scorer %s: %w", s.fallback.Name(), ErrNoRoutes)
	}

	res := s.result(tc, routes, SourceFallback, s.fallback.Name())
	if cause != nil {
		s.logger.Warn().
			Str("scorer", s.fallback.Name()).
			Int("route_count", len(routes)).
			Msg("using fallback safety scores")
		res.Warnings = append(res.Warnings, WarningFallback)
	}
	return res, nil
}

func (s *Service) result(tc TravelContext, routes []Route, source Source, scorer string) *ScoreResult {
	return &ScoreResult{
		Routes:  Rank(routes),
		Context: tc,
		Source:  source,
		Scorer:  scorer,
	}
}

// cacheKey quantises both endpoints to the grid and appends the hour and weekend flag.
// Format: {gridOriginLat},{gridOriginLon}:{gridDestLat},{gridDestLon}:h{hour}:w{0|1}.
func (s *Service) cacheKey(tc TravelContext) string {
	gridOriginLat := math.Floor(tc.Origin.Lat/s.cacheGridSize) * s.cacheGridSize
	gridOriginLon := math.Floor(tc.Origin.Lon/s.cacheGridSize) * s.cacheGridSize
	gridDestLat := math.Floor(tc.Destination.Lat/s.cacheGridSize) * s.cacheGridSize
	gridDestLon := math.Floor(tc.Destination.Lon/s.cacheGridSize) * s.cacheGridSize

	weekend := 0
	if tc.IsWeekend {
		weekend = 1
	}

	return fmt.Sprintf("%.3f,%.3f:%.3f,%.3f:h%d:w%d",
		gridOriginLat, gridOriginLon,
		gridDestLat, gridDestLon,
		tc.Hour, weekend,
	)
}

// cleanupIfNeeded removes entries past the stale window. Caller holds s.mu.
func (s *Service) cleanupIfNeeded() {
	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}

	s.lastCleanup = now
	expired := 0

	for key, cached := range s.cache {
		if now.After(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.cache, key)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().
			Int("expired_entries", expired).
			Msg("cleaned up expired safety cache entries")
	}
}

// InvalidateCache clears all cached oracle answers.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedRoutes)
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	fresh := 0
	stale := 0

	for _, c := range s.cache {
		if now.Before(c.expiresAt) {
			fresh++
		} else if now.Before(c.fetchedAt.Add(s.staleIfErrorTTL)) {
			stale++
		}
	}

	return CacheStats{
		TotalEntries: len(s.cache),
		FreshEntries: fresh,
		StaleEntries: stale,
		Scorer:       s.ScorerName(),
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
	Scorer       string
}

// ScorerName returns the name of the primary scorer.
func (s *Service) ScorerName() string {
	if s.oracle == nil {
		return s.fallback.Name()
	}
	return s.oracle.Name()
}
