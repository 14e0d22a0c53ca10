package models

// PlanRequest is the body of POST /v1/routes:plan.
type PlanRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`

	// DepartureTime defaults to now.
	DepartureTime *Timestamp `json:"departureTime,omitempty"`
}

// ResolvedLocation is a geocoded plan endpoint.
type ResolvedLocation struct {
	Point       Point  `json:"point"`
	Source      string `json:"source"`
	DisplayName string `json:"displayName,omitempty"`
}

// Route is a scored candidate route.
type Route struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	SafetyScore float64 `json:"safetyScore"`
	RiskLevel   string  `json:"riskLevel"`
	ColorHint   string  `json:"colorHint"`
	DistanceKm  float64 `json:"distanceKm"`
	DurationMin int     `json:"durationMin"`
	Waypoints   []Point `json:"waypoints"`
	Polyline    string  `json:"polyline"`
	Recommended bool    `json:"recommended"`
}

// PlanResponse is the current plan: routes ranked safest first.
type PlanResponse struct {
	Origin        ResolvedLocation `json:"origin"`
	Destination   ResolvedLocation `json:"destination"`
	DepartureTime Timestamp        `json:"departureTime"`
	Night         bool             `json:"night"`
	Source        string           `json:"source"`
	Routes        []Route          `json:"routes"`
	Warnings      []string         `json:"warnings"`
	PlannedAt     Timestamp        `json:"plannedAt"`
}
