package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/api/middleware"
	"github.com/hershield/hershield/internal/api/models"
	"github.com/hershield/hershield/internal/api/response"
	"github.com/hershield/hershield/internal/contact"
	"github.com/hershield/hershield/internal/geo"
	"github.com/hershield/hershield/internal/geocode"
	"github.com/hershield/hershield/internal/journey"
	"github.com/hershield/hershield/internal/monitor"
	"github.com/hershield/hershield/internal/safety"
)

// errorStatus maps a domain error to its HTTP status and client-facing detail.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, geo.ErrInvalidCoordinates),
		errors.Is(err, geocode.ErrEmptyLocation),
		errors.Is(err, contact.ErrInvalidContact):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, journey.ErrRouteNotFound),
		errors.Is(err, contact.ErrContactNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, journey.ErrNoRoutes),
		errors.Is(err, monitor.ErrNoRouteSelected),
		errors.Is(err, journey.ErrPlanSuperseded):
		return http.StatusConflict, err.Error()
	case errors.Is(err, safety.ErrInvariantViolation):
		return http.StatusInternalServerError, err.Error()
	default:
		return http.StatusInternalServerError, "an unexpected error occurred"
	}
}

// writeError writes the problem response for a domain error.
// Server errors are logged; invariant violations surface their detail and are never masked.
func writeError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	status, detail := errorStatus(err)

	if status >= http.StatusInternalServerError {
		logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}

	switch status {
	case http.StatusBadRequest:
		response.BadRequest(w, r, detail, fieldErrors(err))
	case http.StatusNotFound:
		response.NotFound(w, r, detail)
	case http.StatusConflict:
		response.Conflict(w, r, detail)
	default:
		response.InternalError(w, r, detail)
	}
}

// fieldErrors extracts structured field errors from coordinate validation failures.
func fieldErrors(err error) []models.FieldError {
	var inputErr *geo.InputError
	if !errors.As(err, &inputErr) {
		return nil
	}
	field := inputErr.Field
	if field == "" {
		field = "location"
	}
	return []models.FieldError{{
		Field:   field,
		Message: "latitude must be [-90, 90], longitude must be [-180, 180]",
		Code:    "OUT_OF_RANGE",
	}}
}
