package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/hershield/hershield/internal/api/models"
)

// RateLimitConfig is a fixed request budget per window.
type RateLimitConfig struct {
	// Name appears in the problem detail so clients know which budget they spent.
	Name         string
	RequestLimit int
	WindowLength time.Duration
}

// Budgets per endpoint family. Position ticks get the most headroom since a
// phone reports about once a second while monitoring; planning is the most
// expensive call because it geocodes and scores several candidates.
var (
	StandardRateLimit  = RateLimitConfig{Name: "standard", RequestLimit: 100, WindowLength: time.Minute}
	ExpensiveRateLimit = RateLimitConfig{Name: "route planning", RequestLimit: 30, WindowLength: time.Minute}
	TickRateLimit      = RateLimitConfig{Name: "position updates", RequestLimit: 120, WindowLength: time.Minute}
)

// RateLimitByIP limits by client address. Put it after chi's RealIP so
// proxied requests are keyed by the original client.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limiter(cfg, httprate.KeyByRealIP)
}

// RateLimitByUser limits by authenticated identity, so one user moving
// between networks keeps a single budget. Requests without an identity are
// keyed by address.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limiter(cfg, func(r *http.Request) (string, error) {
		if userID := GetUserID(r.Context()); userID != "" {
			return "uid=" + userID, nil
		}
		return httprate.KeyByRealIP(r)
	})
}

func limiter(cfg RateLimitConfig, key httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(cfg.exceeded),
	)
}

// exceeded answers 429 with a Retry-After of one full window, which is the
// longest a client can have to wait for the sliding counter to drain.
func (cfg RateLimitConfig) exceeded(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", strconv.Itoa(cfg.retryAfterSeconds()))
	models.NewTooManyRequests(GetRequestID(r.Context()), cfg.detail()).
		WithInstance(r.URL.Path).
		Write(w)
}

func (cfg RateLimitConfig) detail() string {
	name := cfg.Name
	if name == "" {
		name = "request"
	}
	return fmt.Sprintf("Rate limit exceeded: %s budget is %d requests per %s. Please try again later.",
		name, cfg.RequestLimit, cfg.WindowLength)
}

func (cfg RateLimitConfig) retryAfterSeconds() int {
	secs := int(math.Ceil(cfg.WindowLength.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
