package oracle

// predictRequest is the /predict_safety request body.
type predictRequest struct {
	StartLat  float64 `json:"start_lat"`
	StartLon  float64 `json:"start_lon"`
	EndLat    float64 `json:"end_lat"`
	EndLon    float64 `json:"end_lon"`
	Hour      int     `json:"hour"`
	IsWeekend int     `json:"is_weekend"` // 0 or 1
}

// predictResponse is the /predict_safety response body.
type predictResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Routes  []predictRoute `json:"routes"`
}

// predictRoute is a single scored route. Waypoints are [lat, lon] pairs.
type predictRoute struct {
	RouteID     int         `json:"route_id"`
	RouteName   string      `json:"route_name"`
	SafetyScore float64     `json:"safety_score"`
	RiskLevel   string      `json:"risk_level"`
	DistanceKm  float64     `json:"distance_km"`
	DurationMin float64     `json:"duration_min"`
	Waypoints   [][]float64 `json:"waypoints"`
	Polyline    string      `json:"polyline,omitempty"`
}

const statusSuccess = "success"
