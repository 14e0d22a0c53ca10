package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/alert"
	"github.com/hershield/hershield/internal/api/middleware"
	"github.com/hershield/hershield/internal/api/models"
	"github.com/hershield/hershield/internal/api/response"
	"github.com/hershield/hershield/internal/geo"
	"github.com/hershield/hershield/internal/journey"
)

// AlertHandler handles SOS and alert history endpoints.
type AlertHandler struct {
	journeys      *journey.Manager
	defaultWindow int
	logger        zerolog.Logger
}

// NewAlertHandler creates a new AlertHandler. defaultWindow is the number of
// alerts listed when the request has no limit (default: alert.DefaultRecentWindow).
func NewAlertHandler(journeys *journey.Manager, defaultWindow int, logger zerolog.Logger) *AlertHandler {
	if defaultWindow <= 0 {
		defaultWindow = alert.DefaultRecentWindow
	}
	return &AlertHandler{journeys: journeys, defaultWindow: defaultWindow, logger: logger}
}

// SOS handles POST /v1/alerts:sos - raise an SOS alert.
// The body is optional; without a location the last known position is used.
// Notifier failures never fail the request: they are reported in the delivery.
func (h *AlertHandler) SOS(w http.ResponseWriter, r *http.Request) {
	// An unreadable body still raises the alert, from the last known position.
	var input models.SOSRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("content_type", r.Header.Get("Content-Type")).
			Msg("ignoring unreadable SOS body")
		input = models.SOSRequest{}
	}

	var location *geo.Coordinate
	if input.Location != nil {
		c := toCoordinate(*input.Location)
		location = &c
	}

	event, delivery, err := userJourney(h.journeys, r).SOS(r.Context(), location)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Created(w, r, "", toAlertResponse(event, delivery))
}

// ListAlerts handles GET /v1/alerts?limit=N - recent alerts, oldest first.
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultWindow
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > alert.MaxRecentWindow {
			response.BadRequest(w, r, "limit must be an integer between 1 and "+strconv.Itoa(alert.MaxRecentWindow), []models.FieldError{
				{Field: "limit", Message: "out of range", Code: "OUT_OF_RANGE"},
			})
			return
		}
		limit = n
	}

	j := userJourney(h.journeys, r)
	events := j.Alerts(limit)

	list := models.AlertList{
		Alerts: make([]models.AlertEvent, len(events)),
		Total:  j.AlertCount(),
		Limit:  limit,
	}
	for i, e := range events {
		list.Alerts[i] = toAlertEvent(e)
	}
	response.JSON(w, r, http.StatusOK, list)
}
