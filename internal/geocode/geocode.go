// Package geocode resolves free-text place names and "lat, lon" strings to coordinates.
//
// Lookup order is coordinate pair, local gazetteer, cache of earlier network
// answers, network provider, and finally a configured default point. Network
// failures never surface as errors; they end in the default point with a
// non-fatal warning wrapping ErrLocationNotFound.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/geo"
)

// Sentinel errors for geocoding.
var (
	// ErrEmptyLocation indicates blank input. It is an input validation error.
	ErrEmptyLocation = errors.New("location is empty")
	// ErrLocationNotFound indicates no source could resolve the text. It is
	// only ever reported as Resolution.Warning.
	ErrLocationNotFound = errors.New("location not found")
	// ErrProviderUnavailable indicates the network provider could not be reached.
	ErrProviderUnavailable = errors.New("geocoding provider unavailable")
)

// Source identifies which lookup step produced a coordinate.
type Source string

const (
	SourceCoordinates Source = "coordinates"
	SourceGazetteer   Source = "gazetteer"
	SourceCache       Source = "cache"
	SourceNetwork     Source = "network"
	SourceDefault     Source = "default"
)

// DefaultReference is the fallback point: central Delhi.
var DefaultReference = geo.Coordinate{Lat: 28.6139, Lon: 77.2090}

// Place is a provider answer.
type Place struct {
	Coordinate  geo.Coordinate `json:"coordinate"`
	DisplayName string         `json:"display_name,omitempty"`
}

// Provider looks places up over the network.
type Provider interface {
	// Search returns the best match for query. It returns an error wrapping
	// ErrLocationNotFound when the provider has no match.
	Search(ctx context.Context, query string) (*Place, error)
	// Name returns the provider identifier for logging.
	Name() string
}

// Cache stores earlier network answers keyed by normalised query text.
type Cache interface {
	Get(ctx context.Context, key string) (*Place, bool, error)
	Set(ctx context.Context, key string, place Place) error
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Coordinate  geo.Coordinate
	Source      Source
	DisplayName string

	// Warning is set when the default point was used. It wraps ErrLocationNotFound.
	Warning error
}

// Config holds configuration for the Geocoder.
type Config struct {
	// Gazetteer is the local place table (default: DefaultGazetteer).
	Gazetteer Gazetteer

	// Provider is the network geocoder (optional).
	Provider Provider

	// Cache stores network answers (optional).
	Cache Cache

	// Logger for geocoding operations.
	Logger zerolog.Logger

	// Timeout bounds the whole network step (default: 3 seconds).
	Timeout time.Duration

	// RegionSuffix is appended to the first network query (default: ", Delhi, India").
	// Set to "-" to disable.
	RegionSuffix string

	// Default is returned when nothing matches (default: DefaultReference).
	Default *geo.Coordinate
}

// Geocoder resolves location text.
type Geocoder struct {
	gazetteer    Gazetteer
	provider     Provider
	cache        Cache
	logger       zerolog.Logger
	timeout      time.Duration
	regionSuffix string
	fallback     geo.Coordinate
}

// New creates a new Geocoder.
func New(cfg Config) *Geocoder {
	gazetteer := cfg.Gazetteer
	if gazetteer == nil {
		gazetteer = DefaultGazetteer()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}

	suffix := cfg.RegionSuffix
	switch suffix {
	case "":
		suffix = ", Delhi, India"
	case "-":
		suffix = ""
	}

	fallback := DefaultReference
	if cfg.Default != nil {
		fallback = *cfg.Default
	}

	return &Geocoder{
		gazetteer:    gazetteer,
		provider:     cfg.Provider,
		cache:        cfg.Cache,
		logger:       cfg.Logger,
		timeout:      timeout,
		regionSuffix: suffix,
		fallback:     fallback,
	}
}

// Default returns the configured fallback point.
func (g *Geocoder) Default() geo.Coordinate {
	return g.fallback
}

// Resolve turns text into a coordinate.
//
// Blank text fails with ErrEmptyLocation and an out-of-range coordinate pair
// fails with *geo.InputError. Every other input resolves; when nothing
// matches, the default point is returned with a Warning.
func (g *Geocoder) Resolve(ctx context.Context, text string) (Resolution, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Resolution{}, ErrEmptyLocation
	}

	if c, ok := parseCoordinatePair(text); ok {
		if err := c.Validate("location"); err != nil {
			return Resolution{}, err
		}
		return Resolution{Coordinate: c, Source: SourceCoordinates}, nil
	}

	key := normalize(text)

	if c, ok := g.gazetteer.Lookup(key); ok {
		return Resolution{Coordinate: c, Source: SourceGazetteer, DisplayName: text}, nil
	}

	if g.cache != nil {
		place, ok, err := g.cache.Get(ctx, key)
		if err != nil {
			g.logger.Warn().Err(err).Str("query", key).Msg("geocode cache read failed")
		} else if ok {
			g.logger.Debug().Str("query", key).Msg("geocode cache hit")
			return Resolution{Coordinate: place.Coordinate, Source: SourceCache, DisplayName: place.DisplayName}, nil
		}
	}

	if g.provider != nil {
		if place := g.search(ctx, text); place != nil {
			if g.cache != nil {
				if err := g.cache.Set(ctx, key, *place); err != nil {
					g.logger.Warn().Err(err).Str("query", key).Msg("geocode cache write failed")
				}
			}
			return Resolution{Coordinate: place.Coordinate, Source: SourceNetwork, DisplayName: place.DisplayName}, nil
		}
	}

	g.logger.Warn().
		Str("query", text).
		Float64("default_lat", g.fallback.Lat).
		Float64("default_lon", g.fallback.Lon).
		Msg("location not found, using default reference point")

	return Resolution{
		Coordinate: g.fallback,
		Source:     SourceDefault,
		Warning:    fmt.Errorf("%w: %q, using approximate location", ErrLocationNotFound, text),
	}, nil
}

// search runs the region-qualified query, then the bare query, within one timeout.
// Failures are logged and reported as no match.
func (g *Geocoder) search(ctx context.Context, text string) *Place {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	queries := []string{text}
	if g.regionSuffix != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(strings.TrimLeft(g.regionSuffix, ", "))) {
		queries = []string{text + g.regionSuffix, text}
	}

	for _, q := range queries {
		place, err := g.provider.Search(ctx, q)
		if err == nil && place != nil {
			if verr := place.Coordinate.Validate("location"); verr != nil {
				g.logger.Warn().Err(verr).Str("query", q).Str("provider", g.provider.Name()).Msg("geocoder returned invalid coordinates")
				continue
			}
			return place
		}
		if err != nil && !errors.Is(err, ErrLocationNotFound) {
			g.logger.Warn().Err(err).Str("query", q).Str("provider", g.provider.Name()).Msg("geocoding request failed")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// parseCoordinatePair accepts "lat, lon" with an optional space.
func parseCoordinatePair(text string) (geo.Coordinate, bool) {
	latStr, lonStr, ok := strings.Cut(text, ",")
	if !ok {
		return geo.Coordinate{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return geo.Coordinate{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return geo.Coordinate{}, false
	}
	return geo.Coordinate{Lat: lat, Lon: lon}, true
}

// normalize lower-cases text and collapses runs of whitespace.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
