package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/api/models"
	"github.com/hershield/hershield/internal/api/response"
	"github.com/hershield/hershield/internal/export"
	"github.com/hershield/hershield/internal/journey"
)

// PlanHandler handles route planning endpoints.
type PlanHandler struct {
	journeys *journey.Manager
	logger   zerolog.Logger
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(journeys *journey.Manager, logger zerolog.Logger) *PlanHandler {
	return &PlanHandler{journeys: journeys, logger: logger}
}

// PlanRoutes handles POST /v1/routes:plan - geocode, score and rank routes.
func (h *PlanHandler) PlanRoutes(w http.ResponseWriter, r *http.Request) {
	var input models.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	var fieldErrs []models.FieldError
	if strings.TrimSpace(input.Origin) == "" {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "origin", Message: "required", Code: "REQUIRED"})
	}
	if strings.TrimSpace(input.Destination) == "" {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "destination", Message: "required", Code: "REQUIRED"})
	}
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "origin and destination are required", fieldErrs)
		return
	}

	req := journey.PlanRequest{
		Origin:      input.Origin,
		Destination: input.Destination,
	}
	if input.DepartureTime != nil {
		req.DepartureTime = input.DepartureTime.Time()
	}

	plan, err := userJourney(h.journeys, r).Plan(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	response.JSON(w, r, http.StatusOK, toPlanResponse(plan))
}

// CurrentRoutes handles GET /v1/routes - the current ranked routes.
func (h *PlanHandler) CurrentRoutes(w http.ResponseWriter, r *http.Request) {
	plan := userJourney(h.journeys, r).CurrentPlan()
	if plan == nil {
		response.NotFound(w, r, journey.ErrNoRoutes.Error())
		return
	}
	response.JSON(w, r, http.StatusOK, toPlanResponse(plan))
}

// ExportKML handles GET /v1/routes/{routeId}/kml - download a route as KML.
func (h *PlanHandler) ExportKML(w http.ResponseWriter, r *http.Request) {
	routeID, ok := routeIDParam(w, r)
	if !ok {
		return
	}

	route, err := userJourney(h.journeys, r).Route(routeID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Attachment(w, r, export.KMLContentType, export.KMLFilename(route), func(out io.Writer) error {
		return export.WriteRouteKML(out, route)
	})
}

// routeIDParam parses the routeId path parameter, writing a 400 when it is not an integer.
func routeIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "routeId")
	id, err := strconv.Atoi(raw)
	if err != nil {
		response.BadRequest(w, r, "routeId must be an integer", []models.FieldError{
			{Field: "routeId", Message: "must be an integer", Code: "INVALID"},
		})
		return 0, false
	}
	return id, true
}
