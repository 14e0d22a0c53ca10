package models

// SOSRequest is the body of POST /v1/alerts:sos. The body itself is optional.
type SOSRequest struct {
	Location *Point `json:"location,omitempty"`
}

// AlertEvent is a raised alert.
type AlertEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	UserID    string    `json:"userId"`
	Location  Point     `json:"location"`
	Timestamp Timestamp `json:"timestamp"`
}

// DeliveryAttempt is the outcome of one notifier.
type DeliveryAttempt struct {
	Notifier   string `json:"notifier"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Delivery summarises notifier outcomes. Degraded is true when any notifier failed.
type Delivery struct {
	Delivered int               `json:"delivered"`
	Degraded  bool              `json:"degraded"`
	Attempts  []DeliveryAttempt `json:"attempts"`
}

// AlertResponse pairs a raised alert with its delivery report.
type AlertResponse struct {
	Alert    AlertEvent `json:"alert"`
	Delivery Delivery   `json:"delivery"`
}

// AlertList is the recent alert history, oldest first.
type AlertList struct {
	Alerts []AlertEvent `json:"alerts"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
}
