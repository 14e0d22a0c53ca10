package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/api/models"
	"github.com/hershield/hershield/internal/api/response"
	"github.com/hershield/hershield/internal/journey"
)

// ContactHandler handles trusted contact endpoints.
type ContactHandler struct {
	journeys *journey.Manager
	logger   zerolog.Logger
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(journeys *journey.Manager, logger zerolog.Logger) *ContactHandler {
	return &ContactHandler{journeys: journeys, logger: logger}
}

// ListContacts handles GET /v1/contacts.
func (h *ContactHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts := userJourney(h.journeys, r).Contacts()

	list := models.ContactList{Contacts: make([]models.Contact, len(contacts))}
	for i, c := range contacts {
		list.Contacts[i] = toContact(c)
	}
	response.JSON(w, r, http.StatusOK, list)
}

// CreateContact handles POST /v1/contacts.
func (h *ContactHandler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var input models.ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	c, err := userJourney(h.journeys, r).AddContact(input.Name, input.Phone)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.Created(w, r, "/v1/contacts/"+c.ID, toContact(c))
}

// DeleteContact handles DELETE /v1/contacts/{contactId}.
func (h *ContactHandler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "contactId")
	if err := userJourney(h.journeys, r).RemoveContact(id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.NoContent(w, r)
}

// EmergencyHandler serves the static helpline list.
type EmergencyHandler struct {
	numbers models.EmergencyNumbers
}

// NewEmergencyHandler creates a new EmergencyHandler.
func NewEmergencyHandler(numbers []models.EmergencyNumber) *EmergencyHandler {
	list := make([]models.EmergencyNumber, len(numbers))
	copy(list, numbers)
	return &EmergencyHandler{numbers: models.EmergencyNumbers{Numbers: list}}
}

// ListNumbers handles GET /v1/emergency-numbers.
func (h *EmergencyHandler) ListNumbers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	response.JSON(w, r, http.StatusOK, h.numbers)
}
