package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/api/models"
	"github.com/hershield/hershield/internal/api/response"
	"github.com/hershield/hershield/internal/geo"
	"github.com/hershield/hershield/internal/journey"
)

// MonitoringHandler handles live journey monitoring endpoints.
type MonitoringHandler struct {
	journeys *journey.Manager
	logger   zerolog.Logger
}

// NewMonitoringHandler creates a new MonitoringHandler.
func NewMonitoringHandler(journeys *journey.Manager, logger zerolog.Logger) *MonitoringHandler {
	return &MonitoringHandler{journeys: journeys, logger: logger}
}

// Status handles GET /v1/monitoring - the monitoring read model.
func (h *MonitoringHandler) Status(w http.ResponseWriter, r *http.Request) {
	j := userJourney(h.journeys, r)
	response.JSON(w, r, http.StatusOK, toMonitoringStatus(j.Monitoring(), j.Monitor()))
}

// SelectRoute handles PUT /v1/monitoring/route - choose the route to monitor.
func (h *MonitoringHandler) SelectRoute(w http.ResponseWriter, r *http.Request) {
	var input models.SelectRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.RouteID == nil {
		response.BadRequest(w, r, "routeId is required", []models.FieldError{
			{Field: "routeId", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	j := userJourney(h.journeys, r)
	if _, err := j.SelectRoute(*input.RouteID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toMonitoringStatus(j.Monitoring(), j.Monitor()))
}

// Start handles POST /v1/monitoring:start.
func (h *MonitoringHandler) Start(w http.ResponseWriter, r *http.Request) {
	j := userJourney(h.journeys, r)
	snap, err := j.StartMonitoring()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toMonitoringStatus(snap, j.Monitor()))
}

// Stop handles POST /v1/monitoring:stop. Stopping an idle session is not an error.
func (h *MonitoringHandler) Stop(w http.ResponseWriter, r *http.Request) {
	j := userJourney(h.journeys, r)
	response.JSON(w, r, http.StatusOK, toMonitoringStatus(j.StopMonitoring(), j.Monitor()))
}

// Tick handles POST /v1/monitoring:tick - report a live position.
func (h *MonitoringHandler) Tick(w http.ResponseWriter, r *http.Request) {
	var input models.TickRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	pos, fieldErrs := tickPosition(input)
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "lat and lon are required", fieldErrs)
		return
	}

	res, err := userJourney(h.journeys, r).Tick(r.Context(), pos)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toTickResponse(res))
}

// tickPosition checks presence of both coordinates; range checks happen in the session.
func tickPosition(input models.TickRequest) (geo.Coordinate, []models.FieldError) {
	var fieldErrs []models.FieldError
	if input.Lat == nil {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "lat", Message: "required", Code: "REQUIRED"})
	}
	if input.Lon == nil {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "lon", Message: "required", Code: "REQUIRED"})
	}
	if len(fieldErrs) > 0 {
		return geo.Coordinate{}, fieldErrs
	}
	return geo.Coordinate{Lat: *input.Lat, Lon: *input.Lon}, nil
}
