package handler

import (
	"net/http"

	"github.com/hershield/hershield/internal/api/middleware"
	"github.com/hershield/hershield/internal/journey"
)

// userJourney returns the journey owned by the identity the request was
// authenticated as. Unknown users get a fresh journey.
func userJourney(journeys *journey.Manager, r *http.Request) *journey.Journey {
	return journeys.Get(middleware.GetUserID(r.Context()))
}
