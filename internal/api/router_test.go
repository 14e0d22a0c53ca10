package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hershield/hershield/internal/api"
	"github.com/hershield/hershield/internal/api/handler"
	"github.com/hershield/hershield/internal/api/models"
	"github.com/hershield/hershield/internal/auth"
	"github.com/hershield/hershield/internal/export"
	"github.com/hershield/hershield/internal/geocode"
	"github.com/hershield/hershield/internal/journey"
	"github.com/hershield/hershield/internal/provider/resilience"
	"github.com/hershield/hershield/internal/safety"
)

type routerOption func(*api.RouterConfig)

func newTestRouter(t *testing.T, opts ...routerOption) http.Handler {
	t.Helper()
	logger := zerolog.New(io.Discard)

	journeys := journey.NewManager(journey.Config{
		Geocoder:        geocode.New(geocode.Config{Logger: logger}),
		Scorer:          safety.NewService(safety.ServiceConfig{Logger: logger}),
		DefaultLocation: geocode.DefaultReference,
		Logger:          logger,
	})

	cfg := api.RouterConfig{
		Version:   "test",
		BuildTime: "2024-01-01T00:00:00Z",
		Logger:    logger,
		Journeys:  journeys,
		EmergencyNumbers: []models.EmergencyNumber{
			{Name: "Police", Number: "100"},
			{Name: "Women Helpline", Number: "1091"},
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return api.NewRouter(cfg)
}

// do sends a request as userID and returns the recorded response.
func do(t *testing.T, router http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var connaughtToHauzKhas = models.PlanRequest{
	Origin:      "Connaught Place",
	Destination: "Hauz Khas",
}

func planRoutes(t *testing.T, router http.Handler, userID string) models.PlanResponse {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/v1/routes:plan", userID, connaughtToHauzKhas)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[models.PlanResponse](t, rec)
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/ops/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	health := decode[models.Health](t, rec)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestReadinessCheck(t *testing.T) {
	t.Run("all dependencies up", func(t *testing.T) {
		router := newTestRouter(t, func(c *api.RouterConfig) {
			c.ReadinessChecks = []handler.DependencyCheck{
				{Name: "redis", Check: func(context.Context) error { return nil }},
			}
		})

		rec := do(t, router, http.MethodGet, "/v1/ops/ready", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("dependency down", func(t *testing.T) {
		router := newTestRouter(t, func(c *api.RouterConfig) {
			c.ReadinessChecks = []handler.DependencyCheck{
				{Name: "database", Check: func(context.Context) error { return errors.New("connection refused") }},
			}
		})

		rec := do(t, router, http.MethodGet, "/v1/ops/ready", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		health := decode[models.Health](t, rec)
		assert.Equal(t, models.HealthStatusFail, health.Status)
		assert.Equal(t, string(models.HealthStatusFail), health.Details["database"])
	})
}

func TestSystemStatus(t *testing.T) {
	registry := resilience.NewRegistry()
	resilience.NewClient("safety-oracle", resilience.ScoringProfile, resilience.Options{Registry: registry})

	router := newTestRouter(t, func(c *api.RouterConfig) {
		c.Registry = registry
		c.ReadinessChecks = []handler.DependencyCheck{
			{Name: "database", Check: func(context.Context) error { return errors.New("connection refused") }},
		}
	})

	rec := do(t, router, http.MethodGet, "/v1/ops/status", "usr_ops", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	status := decode[models.SystemStatus](t, rec)
	assert.Equal(t, models.HealthStatusFail, status.Status)
	assert.False(t, status.FallbackScoring)

	require.Len(t, status.Upstreams, 1)
	assert.Equal(t, "safety-oracle", status.Upstreams[0].Name)
	assert.Equal(t, models.HealthStatusOK, status.Upstreams[0].Status)
	assert.Equal(t, "closed", status.Upstreams[0].CircuitState)

	require.Len(t, status.Dependencies, 1)
	require.NotNil(t, status.Dependencies[0].Error)
	assert.Equal(t, "connection refused", *status.Dependencies[0].Error)
}

func TestSystemStatus_OracleDownMeansFallbackScoring(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	profile := resilience.ScoringProfile
	profile.Retries = 0
	profile.Trip = resilience.TripAfterConsecutive(1)
	oracleClient := resilience.NewClient("safety-oracle", profile, resilience.Options{Registry: registry})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := oracleClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	router := newTestRouter(t, func(c *api.RouterConfig) { c.Registry = registry })
	status := decode[models.SystemStatus](t, do(t, router, http.MethodGet, "/v1/ops/status", "usr_ops", nil))

	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	assert.True(t, status.FallbackScoring)
	assert.Equal(t, []string{"safety-oracle"}, status.Degraded)
	require.Len(t, status.Upstreams, 1)
	assert.Equal(t, "open", status.Upstreams[0].CircuitState)
	require.NotNil(t, status.Upstreams[0].LastError)
}

func TestPlanRoutes_ConnaughtPlaceToHauzKhas(t *testing.T) {
	router := newTestRouter(t)

	plan := planRoutes(t, router, "usr_priya")

	assert.Equal(t, "gazetteer", plan.Origin.Source)
	assert.InDelta(t, 28.6315, plan.Origin.Point.Lat, 1e-9)
	assert.InDelta(t, 77.2001, plan.Destination.Point.Lon, 1e-9)
	assert.Equal(t, "fallback", plan.Source)
	assert.NotNil(t, plan.Warnings)

	require.NotEmpty(t, plan.Routes)
	assert.True(t, plan.Routes[0].Recommended)
	for i, r := range plan.Routes {
		assert.NotEmpty(t, r.Polyline)
		assert.GreaterOrEqual(t, len(r.Waypoints), 2)
		assert.Equal(t, string(safety.RiskLevelForScore(r.SafetyScore)), r.RiskLevel)
		if i > 0 {
			assert.False(t, r.Recommended)
			assert.GreaterOrEqual(t, plan.Routes[i-1].SafetyScore, r.SafetyScore, "routes are ranked safest first")
		}
	}

	rec := do(t, router, http.MethodGet, "/v1/routes", "usr_priya", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, plan.Routes, decode[models.PlanResponse](t, rec).Routes)
}

func TestPlanRoutes_Validation(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing destination", models.PlanRequest{Origin: "Connaught Place"}},
		{"blank origin", models.PlanRequest{Origin: "   ", Destination: "Hauz Khas"}},
		{"coordinates out of range", models.PlanRequest{Origin: "95.0, 77.2", Destination: "Hauz Khas"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/v1/routes:plan", "usr_priya", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestPlanRoutes_RejectsNonJSONBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/routes:plan", strings.NewReader("origin=cp"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestCurrentRoutes_NoPlan(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/routes", "usr_new", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlansAreIsolatedPerUser(t *testing.T) {
	router := newTestRouter(t)

	planRoutes(t, router, "usr_priya")

	rec := do(t, router, http.MethodGet, "/v1/routes", "usr_ananya", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportKML(t *testing.T) {
	router := newTestRouter(t)
	plan := planRoutes(t, router, "usr_priya")
	best := plan.Routes[0]

	rec := do(t, router, http.MethodGet, "/v1/routes/"+strconv.Itoa(best.ID)+"/kml", "usr_priya", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.KMLContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "hershield-route-"+strconv.Itoa(best.ID)+".kml")
	assert.Contains(t, rec.Body.String(), "<kml")
	assert.Contains(t, rec.Body.String(), best.Name)

	rec = do(t, router, http.MethodGet, "/v1/routes/999/kml", "usr_priya", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/v1/routes/abc/kml", "usr_priya", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMonitoring_StartWithoutRoute(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/monitoring:start", "usr_priya", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	status := decode[models.MonitoringStatus](t, do(t, router, http.MethodGet, "/v1/monitoring", "usr_priya", nil))
	assert.Equal(t, "IDLE", status.State)
}

func TestMonitoring_SelectUnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	id := 1
	rec := do(t, router, http.MethodPut, "/v1/monitoring/route", "usr_priya", models.SelectRouteRequest{RouteID: &id})
	assert.Equal(t, http.StatusConflict, rec.Code, "no plan yet")

	planRoutes(t, router, "usr_priya")

	id = 999
	rec = do(t, router, http.MethodPut, "/v1/monitoring/route", "usr_priya", models.SelectRouteRequest{RouteID: &id})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPut, "/v1/monitoring/route", "usr_priya", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMonitoring_DeviationRaisesAlert(t *testing.T) {
	router := newTestRouter(t)
	plan := planRoutes(t, router, "usr_priya")
	best := plan.Routes[0]

	rec := do(t, router, http.MethodPut, "/v1/monitoring/route", "usr_priya", models.SelectRouteRequest{RouteID: &best.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/v1/monitoring:start", "usr_priya", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status := decode[models.MonitoringStatus](t, rec)
	assert.Equal(t, "ACTIVE", status.State)
	assert.NotNil(t, status.StartedAt)
	assert.InDelta(t, 50.0, status.ThresholdMeters, 1e-9)

	onRoute := best.Waypoints[0]
	rec = do(t, router, http.MethodPost, "/v1/monitoring:tick", "usr_priya", onRoute)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tick := decode[models.TickResponse](t, rec)
	assert.False(t, tick.Deviated)
	require.NotNil(t, tick.Measurement)
	assert.InDelta(t, 0, tick.Measurement.DistanceMeters, 1e-6)
	assert.Nil(t, tick.Alert)

	offRoute := models.Point{Lat: 28.7041, Lon: 77.1025}
	rec = do(t, router, http.MethodPost, "/v1/monitoring:tick", "usr_priya", offRoute)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tick = decode[models.TickResponse](t, rec)
	assert.True(t, tick.Deviated)
	assert.True(t, tick.SignificantMove)
	require.NotNil(t, tick.Alert)
	assert.Equal(t, "DEVIATION", tick.Alert.Alert.Kind)
	assert.Equal(t, offRoute, tick.Alert.Alert.Location)

	// Still deviated: no second alert.
	rec = do(t, router, http.MethodPost, "/v1/monitoring:tick", "usr_priya", offRoute)
	tick = decode[models.TickResponse](t, rec)
	assert.True(t, tick.Deviated)
	assert.Nil(t, tick.Alert)

	alerts := decode[models.AlertList](t, do(t, router, http.MethodGet, "/v1/alerts", "usr_priya", nil))
	require.Len(t, alerts.Alerts, 1)
	assert.Equal(t, "DEVIATION", alerts.Alerts[0].Kind)

	rec = do(t, router, http.MethodPost, "/v1/monitoring:stop", "usr_priya", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "IDLE", decode[models.MonitoringStatus](t, rec).State)
}

func TestMonitoring_TickValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/monitoring:tick", "usr_priya", map[string]float64{"lat": 28.6})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/monitoring:tick", "usr_priya", models.Point{Lat: 91, Lon: 77.2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/monitoring:tick", "usr_priya", models.Point{Lat: 28.6, Lon: 77.2})
	require.Equal(t, http.StatusOK, rec.Code)
	tick := decode[models.TickResponse](t, rec)
	assert.Equal(t, "IDLE", tick.State, "ticks never start a session")
	assert.Nil(t, tick.Measurement)
}

func TestSOS(t *testing.T) {
	router := newTestRouter(t)

	t.Run("no body uses default location", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/v1/alerts:sos", "usr_sos", nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		res := decode[models.AlertResponse](t, rec)
		assert.Equal(t, "SOS", res.Alert.Kind)
		assert.Equal(t, "usr_sos", res.Alert.UserID)
		assert.InDelta(t, geocode.DefaultReference.Lat, res.Alert.Location.Lat, 1e-9)
		assert.False(t, res.Delivery.Degraded)
	})

	t.Run("explicit location", func(t *testing.T) {
		loc := models.Point{Lat: 28.5245, Lon: 77.1855}
		rec := do(t, router, http.MethodPost, "/v1/alerts:sos", "usr_sos", models.SOSRequest{Location: &loc})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, loc, decode[models.AlertResponse](t, rec).Alert.Location)
	})

	t.Run("last known position", func(t *testing.T) {
		pos := models.Point{Lat: 28.6129, Lon: 77.2295}
		require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/v1/monitoring:tick", "usr_sos", pos).Code)

		rec := do(t, router, http.MethodPost, "/v1/alerts:sos", "usr_sos", nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, pos, decode[models.AlertResponse](t, rec).Alert.Location)
	})

	t.Run("invalid location", func(t *testing.T) {
		loc := models.Point{Lat: 28.5, Lon: 181}
		rec := do(t, router, http.MethodPost, "/v1/alerts:sos", "usr_sos", models.SOSRequest{Location: &loc})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	alerts := decode[models.AlertList](t, do(t, router, http.MethodGet, "/v1/alerts?limit=10", "usr_sos", nil))
	assert.Equal(t, 3, alerts.Total)
	assert.Equal(t, 10, alerts.Limit)
	require.Len(t, alerts.Alerts, 3)
	for _, a := range alerts.Alerts {
		assert.Equal(t, "SOS", a.Kind)
	}
}

func TestSOS_AnyDeclaredBodyType(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name        string
		contentType string
		body        string
		wantLat     float64
	}{
		{"beacon text/plain json", "text/plain;charset=UTF-8", `{"location":{"lat":28.5245,"lon":77.1855}}`, 28.5245},
		{"form encoded", "application/x-www-form-urlencoded", "panic=1", geocode.DefaultReference.Lat},
		{"broken json", "application/json", `{"location":`, geocode.DefaultReference.Lat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/alerts:sos", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			req.Header.Set("X-User-Id", "usr_beacon")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			assert.InDelta(t, tt.wantLat, decode[models.AlertResponse](t, rec).Alert.Location.Lat, 1e-9)
		})
	}

	alerts := decode[models.AlertList](t, do(t, router, http.MethodGet, "/v1/alerts?limit=10", "usr_beacon", nil))
	assert.Equal(t, len(tests), alerts.Total, "every SOS is recorded")

	rec := do(t, router, http.MethodGet, "/v1/contacts", "usr_beacon", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	req := httptest.NewRequest(http.MethodPost, "/v1/contacts", strings.NewReader(`{"name":"Meera","phone":"+91 98100 00000"}`))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-User-Id", "usr_beacon")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code, "other endpoints still require JSON")
}

func TestListAlerts_Limit(t *testing.T) {
	router := newTestRouter(t, func(c *api.RouterConfig) { c.AlertRecentWindow = 2 })

	for range 3 {
		require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/v1/alerts:sos", "usr_priya", nil).Code)
	}

	list := decode[models.AlertList](t, do(t, router, http.MethodGet, "/v1/alerts", "usr_priya", nil))
	assert.Len(t, list.Alerts, 2)
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, 2, list.Limit)

	for _, q := range []string{"0", "101", "ten"} {
		rec := do(t, router, http.MethodGet, "/v1/alerts?limit="+q, "usr_priya", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestContacts(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/contacts", "usr_priya", models.ContactRequest{Name: "Meera", Phone: "+91 98100 00000"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	meera := decode[models.Contact](t, rec)
	assert.Equal(t, "/v1/contacts/"+meera.ID, rec.Header().Get("Location"))

	rec = do(t, router, http.MethodPost, "/v1/contacts", "usr_priya", models.ContactRequest{Name: "Ravi", Phone: "+91 98200 00000"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/contacts", "usr_priya", models.ContactRequest{Name: "No Phone"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	list := decode[models.ContactList](t, do(t, router, http.MethodGet, "/v1/contacts", "usr_priya", nil))
	require.Len(t, list.Contacts, 2)
	assert.Equal(t, "Meera", list.Contacts[0].Name)
	assert.Equal(t, "Ravi", list.Contacts[1].Name)

	rec = do(t, router, http.MethodDelete, "/v1/contacts/"+meera.ID, "usr_priya", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodDelete, "/v1/contacts/"+meera.ID, "usr_priya", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	list = decode[models.ContactList](t, do(t, router, http.MethodGet, "/v1/contacts", "usr_priya", nil))
	require.Len(t, list.Contacts, 1)
	assert.Equal(t, "Ravi", list.Contacts[0].Name)
}

func TestEmergencyNumbers(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/emergency-numbers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age")

	numbers := decode[models.EmergencyNumbers](t, rec)
	require.Len(t, numbers.Numbers, 2)
	assert.Equal(t, "1091", numbers.Numbers[1].Number)
}

func TestBearerAuth(t *testing.T) {
	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "hershield",
		Audience:   "hershield-app",
	})
	require.NoError(t, err)

	router := newTestRouter(t, func(c *api.RouterConfig) { c.Verifier = jwtService })

	rec := do(t, router, http.MethodGet, "/v1/contacts", "usr_priya", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "the identity header is ignored when tokens are required")

	token, err := jwtService.Issue("usr_priya")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/contacts", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token.Value)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/v1/ops/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "ops endpoints stay public")

	rec = do(t, router, http.MethodGet, "/v1/emergency-numbers", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "helplines stay public")
}

func TestSecurityHeaders(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/ops/health", "", nil)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRequireTLS(t *testing.T) {
	router := newTestRouter(t, func(c *api.RouterConfig) { c.RequireTLS = true })

	rec := do(t, router, http.MethodGet, "/v1/ops/health", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// streamMessage mirrors models.StreamMessage with a raw payload.
type streamMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func TestMonitoringStream(t *testing.T) {
	server := httptest.NewServer(newTestRouter(t))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/monitoring/stream"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"X-User-Id": []string{"usr_stream"}},
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	var msg streamMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, models.StreamTypeSnapshot, msg.Type)
	var status models.MonitoringStatus
	require.NoError(t, json.Unmarshal(msg.Payload, &status))
	assert.Equal(t, "IDLE", status.State)

	require.NoError(t, wsjson.Write(ctx, conn, models.StreamRequest{Type: models.StreamTypePing}))
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, models.StreamTypePong, msg.Type)

	require.NoError(t, wsjson.Write(ctx, conn, models.StreamRequest{
		Type:    models.StreamTypeTick,
		Payload: json.RawMessage(`{"lat":28.6129,"lon":77.2295}`),
	}))
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	require.Equal(t, models.StreamTypeTick, msg.Type, string(msg.Payload))
	var tick models.TickResponse
	require.NoError(t, json.Unmarshal(msg.Payload, &tick))
	assert.Equal(t, models.Point{Lat: 28.6129, Lon: 77.2295}, tick.Position)

	require.NoError(t, wsjson.Write(ctx, conn, models.StreamRequest{
		Type:    models.StreamTypeTick,
		Payload: json.RawMessage(`{"lat":128.6,"lon":77.2}`),
	}))
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, models.StreamTypeError, msg.Type)
	var streamErr models.StreamError
	require.NoError(t, json.Unmarshal(msg.Payload, &streamErr))
	assert.Equal(t, http.StatusBadRequest, streamErr.Status)

	require.NoError(t, wsjson.Write(ctx, conn, models.StreamRequest{Type: "teleport"}))
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, models.StreamTypeError, msg.Type)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
}
