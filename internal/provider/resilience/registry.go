package resilience

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health is a point-in-time view of one upstream.
type Health struct {
	Name          string
	State         gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// IsHealthy reports a closed breaker.
func (h Health) IsHealthy() bool { return h.State == gobreaker.StateClosed }

// IsDegraded reports a half-open breaker probing a recovering upstream.
func (h Health) IsDegraded() bool { return h.State == gobreaker.StateHalfOpen }

// IsUnhealthy reports an open breaker: calls fail fast and callers use
// their fallbacks.
func (h Health) IsUnhealthy() bool { return h.State == gobreaker.StateOpen }

// Registry lists the upstream clients of one process.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register adds c under its name. A later client with the same name
// replaces the earlier one.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Name()] = c
}

// Health returns the named upstream's health.
func (r *Registry) Health(name string) (Health, bool) {
	r.mu.RLock()
	c, ok := r.clients[name]
	r.mu.RUnlock()
	if !ok {
		return Health{}, false
	}
	return c.Health(), true
}

// All returns every upstream's health, sorted by name.
func (r *Registry) All() []Health {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	out := make([]Health, len(clients))
	for i, c := range clients {
		out[i] = c.Health()
	}
	slices.SortFunc(out, func(a, b Health) int { return strings.Compare(a.Name, b.Name) })
	return out
}
