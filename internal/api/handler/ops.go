// Package handler provides HTTP handlers for the HerShield API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hershield/hershield/internal/api/models"
	"github.com/hershield/hershield/internal/api/response"
	"github.com/hershield/hershield/internal/provider/resilience"
	"github.com/hershield/hershield/internal/safety/oracle"
)

// readinessTimeout bounds all dependency checks of one readiness probe.
const readinessTimeout = 3 * time.Second

// DependencyCheck probes an in-process dependency such as the database or Redis.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	checks    []DependencyCheck
}

// NewOpsHandler creates a new OpsHandler. registry may be nil.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry, checks ...DependencyCheck) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
		checks:    checks,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
// Outbound providers are not consulted: planning and alerting degrade without them.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.runChecks(r.Context())

	details := make(map[string]any, len(subsystems))
	status := models.HealthStatusOK
	for _, s := range subsystems {
		details[s.Name] = s.Status
		if s.Status != models.HealthStatusOK {
			status = models.HealthStatusFail
		}
	}

	health := models.Health{
		Status:  status,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	}
	if status != models.HealthStatusOK {
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status. Failing dependencies fail the
// service; failing upstreams only degrade it, since planning and alerting
// have fallbacks for each of them.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:       models.HealthStatusOK,
		Time:         models.Timestamp(time.Now()),
		Dependencies: h.runChecks(r.Context()),
		Upstreams:    h.upstreamStatuses(),
	}

	for _, d := range status.Dependencies {
		if d.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusFail
		}
	}
	for _, u := range status.Upstreams {
		if u.Status == models.HealthStatusOK {
			continue
		}
		status.Degraded = append(status.Degraded, u.Name)
		if u.Name == oracle.ScorerName {
			status.FallbackScoring = true
		}
		if status.Status == models.HealthStatusOK {
			status.Status = models.HealthStatusDegraded
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) runChecks(ctx context.Context) []models.DependencyStatus {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	out := make([]models.DependencyStatus, len(h.checks))
	for i, c := range h.checks {
		out[i] = models.DependencyStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err := c.Check(ctx); err != nil {
			msg := err.Error()
			out[i].Status = models.HealthStatusFail
			out[i].Error = &msg
		}
	}
	return out
}

func (h *OpsHandler) upstreamStatuses() []models.UpstreamStatus {
	if h.registry == nil {
		return []models.UpstreamStatus{}
	}

	all := h.registry.All()
	out := make([]models.UpstreamStatus, 0, len(all))
	for _, health := range all {
		u := models.UpstreamStatus{
			Name:          health.Name,
			Status:        models.HealthStatusOK,
			CircuitState:  health.State.String(),
			LastSuccessAt: models.TimestampPtr(health.LastSuccessAt),
			LastFailureAt: models.TimestampPtr(health.LastFailureAt),
		}
		switch {
		case health.IsUnhealthy():
			u.Status = models.HealthStatusFail
		case health.IsDegraded():
			u.Status = models.HealthStatusDegraded
		}
		if health.LastError != "" {
			msg := health.LastError
			u.LastError = &msg
		}
		out = append(out, u)
	}
	return out
}
