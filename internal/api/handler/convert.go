package handler

import (
	"github.com/hershield/hershield/internal/alert"
	"github.com/hershield/hershield/internal/api/models"
	"github.com/hershield/hershield/internal/contact"
	"github.com/hershield/hershield/internal/geo"
	"github.com/hershield/hershield/internal/geocode"
	"github.com/hershield/hershield/internal/journey"
	"github.com/hershield/hershield/internal/monitor"
	"github.com/hershield/hershield/internal/safety"
)

func toPoint(c geo.Coordinate) models.Point {
	return models.Point{Lat: c.Lat, Lon: c.Lon}
}

func toCoordinate(p models.Point) geo.Coordinate {
	return geo.Coordinate{Lat: p.Lat, Lon: p.Lon}
}

func toRoute(r *safety.Route, recommended bool) models.Route {
	waypoints := make([]models.Point, len(r.Waypoints))
	for i, wp := range r.Waypoints {
		waypoints[i] = toPoint(wp)
	}
	return models.Route{
		ID:          r.ID,
		Name:        r.Name,
		SafetyScore: r.SafetyScore,
		RiskLevel:   string(r.RiskLevel),
		ColorHint:   r.RiskLevel.ColorHint(),
		DistanceKm:  r.DistanceKm,
		DurationMin: r.DurationMin,
		Waypoints:   waypoints,
		Polyline:    r.Polyline(),
		Recommended: recommended,
	}
}

func toResolvedLocation(res geocode.Resolution) models.ResolvedLocation {
	return models.ResolvedLocation{
		Point:       toPoint(res.Coordinate),
		Source:      string(res.Source),
		DisplayName: res.DisplayName,
	}
}

func toPlanResponse(p *journey.Plan) models.PlanResponse {
	best, _ := p.Routes.Best()

	routes := p.Routes.Routes()
	out := make([]models.Route, len(routes))
	for i := range routes {
		out[i] = toRoute(&routes[i], best != nil && routes[i].ID == best.ID)
	}

	warnings := p.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	return models.PlanResponse{
		Origin:        toResolvedLocation(p.Origin),
		Destination:   toResolvedLocation(p.Destination),
		DepartureTime: models.Timestamp(p.Context.At),
		Night:         p.Context.IsNight(),
		Source:        string(p.Source),
		Routes:        out,
		Warnings:      warnings,
		PlannedAt:     models.Timestamp(p.PlannedAt),
	}
}

func toMeasurement(m *monitor.Measurement) *models.Measurement {
	if m == nil {
		return nil
	}
	return &models.Measurement{
		DistanceMeters:  m.DistanceMeters,
		NearestWaypoint: m.NearestWaypoint,
	}
}

func toMonitoringStatus(s monitor.Snapshot, m monitor.DeviationMonitor) models.MonitoringStatus {
	status := models.MonitoringStatus{
		State:           string(s.State),
		Deviated:        s.Deviated,
		StartedAt:       models.TimestampPtr(s.StartedAt),
		Ticks:           s.Ticks,
		Measurement:     toMeasurement(s.Measurement),
		ThresholdMeters: m.ThresholdMeters,
		Strategy:        string(m.Strategy),
	}
	if s.Route != nil {
		route := toRoute(s.Route, false)
		status.Route = &route
	}
	if s.LastPosition != nil {
		pos := toPoint(*s.LastPosition)
		status.LastPosition = &pos
	}
	return status
}

func toTickResponse(res monitor.TickResult) models.TickResponse {
	resp := models.TickResponse{
		Position:        toPoint(res.Position),
		MovedMeters:     res.MovedMeters,
		SignificantMove: res.SignificantMove,
		State:           string(res.State),
		Deviated:        res.Deviated,
		Measurement:     toMeasurement(res.Measurement),
	}
	if res.Alert != nil {
		var delivery alert.Delivery
		if res.Delivery != nil {
			delivery = *res.Delivery
		}
		a := toAlertResponse(*res.Alert, delivery)
		resp.Alert = &a
	}
	return resp
}

func toAlertEvent(e alert.Event) models.AlertEvent {
	return models.AlertEvent{
		ID:        e.ID,
		Kind:      string(e.Kind),
		UserID:    e.UserID,
		Location:  toPoint(e.Location),
		Timestamp: models.Timestamp(e.Timestamp),
	}
}

func toAlertResponse(e alert.Event, d alert.Delivery) models.AlertResponse {
	attempts := make([]models.DeliveryAttempt, len(d.Attempts))
	for i, a := range d.Attempts {
		attempts[i] = models.DeliveryAttempt{
			Notifier:   a.Notifier,
			OK:         a.OK(),
			DurationMs: a.Duration.Milliseconds(),
		}
		if a.Err != nil {
			attempts[i].Error = a.Err.Error()
		}
	}
	return models.AlertResponse{
		Alert: toAlertEvent(e),
		Delivery: models.Delivery{
			Delivered: d.Delivered(),
			Degraded:  d.Degraded(),
			Attempts:  attempts,
		},
	}
}

func toContact(c contact.Contact) models.Contact {
	return models.Contact{
		ID:      c.ID,
		Name:    c.Name,
		Phone:   c.Phone,
		AddedAt: models.Timestamp(c.AddedAt),
	}
}
