package models

// SelectRouteRequest is the body of PUT /v1/monitoring/route.
type SelectRouteRequest struct {
	RouteID *int `json:"routeId"`
}

// TickRequest is a position update.
type TickRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// Measurement is the distance from a position to the monitored route.
type Measurement struct {
	DistanceMeters  float64 `json:"distanceMeters"`
	NearestWaypoint int     `json:"nearestWaypoint"`
}

// MonitoringStatus is the read model of a monitoring session.
type MonitoringStatus struct {
	State           string       `json:"state"`
	Deviated        bool         `json:"deviated"`
	Route           *Route       `json:"route,omitempty"`
	LastPosition    *Point       `json:"lastPosition,omitempty"`
	StartedAt       *Timestamp   `json:"startedAt,omitempty"`
	Ticks           int          `json:"ticks"`
	Measurement     *Measurement `json:"measurement,omitempty"`
	ThresholdMeters float64      `json:"thresholdMeters"`
	Strategy        string       `json:"strategy"`
}

// TickResponse describes the effect of one position update.
type TickResponse struct {
	Position        Point          `json:"position"`
	MovedMeters     float64        `json:"movedMeters"`
	SignificantMove bool           `json:"significantMove"`
	State           string         `json:"state"`
	Deviated        bool           `json:"deviated"`
	Measurement     *Measurement   `json:"measurement,omitempty"`
	Alert           *AlertResponse `json:"alert,omitempty"`
}
