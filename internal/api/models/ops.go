package models

// Health is the body of the liveness and readiness probes.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus reports every dependency the service leans on. FallbackScoring
// is set while the safety oracle is degraded and plans carry deterministic
// fallback scores instead.
type SystemStatus struct {
	Status          HealthStatus       `json:"status"`
	Time            Timestamp          `json:"time"`
	FallbackScoring bool               `json:"fallbackScoring"`
	Dependencies    []DependencyStatus `json:"dependencies"`
	Upstreams       []UpstreamStatus   `json:"upstreams"`
	Degraded        []string           `json:"degraded,omitempty"`
}

// DependencyStatus is the result of probing a store the service owns, such
// as the alert archive database or the geocode cache.
type DependencyStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Error  *string      `json:"error,omitempty"`
}

// UpstreamStatus is the circuit breaker view of an outbound HTTP service:
// the safety oracle, the geocoder or the alert webhook.
type UpstreamStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	LastError     *string      `json:"lastError,omitempty"`
}
