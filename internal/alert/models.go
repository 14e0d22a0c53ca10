// Package alert records SOS and deviation alerts and forwards them to notifiers.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hershield/hershield/internal/contact"
	"github.com/hershield/hershield/internal/geo"
)

// ErrUnknownKind is returned when parsing an unsupported alert kind.
var ErrUnknownKind = errors.New("unknown alert kind")

// Kind is the type of alert.
type Kind string

// Alert kinds.
const (
	KindSOS       Kind = "SOS"
	KindDeviation Kind = "DEVIATION"
)

// ParseKind parses an alert kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSOS, KindDeviation:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Event is a recorded alert. Events are immutable once created.
type Event struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	UserID    string         `json:"userId"`
	Location  geo.Coordinate `json:"location"`
	Timestamp time.Time      `json:"timestamp"`
}

// Request describes an alert to raise.
type Request struct {
	Kind     Kind
	UserID   string
	Location geo.Coordinate
	Contacts []contact.Contact
}

// Notification is what notifiers receive: the event and the contacts to reach.
type Notification struct {
	Event    Event
	Contacts []contact.Contact
}

// Notifier forwards alerts to a downstream system.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Name() string
}

// Archive keeps a durable copy of events.
type Archive interface {
	Append(ctx context.Context, e Event) error
}

// Attempt is the outcome of one notifier call.
type Attempt struct {
	Notifier string
	Err      error
	Duration time.Duration
}

// OK reports whether the notifier acknowledged the alert.
func (a Attempt) OK() bool {
	return a.Err == nil
}

// Delivery summarises the fan-out of one event.
type Delivery struct {
	Attempts []Attempt
}

// Delivered returns the number of notifiers that acknowledged the alert.
func (d Delivery) Delivered() int {
	n := 0
	for _, a := range d.Attempts {
		if a.OK() {
			n++
		}
	}
	return n
}

// Failed returns the attempts that did not succeed.
func (d Delivery) Failed() []Attempt {
	var failed []Attempt
	for _, a := range d.Attempts {
		if !a.OK() {
			failed = append(failed, a)
		}
	}
	return failed
}

// Degraded reports whether at least one notifier failed.
func (d Delivery) Degraded() bool {
	return len(d.Failed()) > 0
}

// Payload is the wire format sent to the webhook and Pub/Sub.
type Payload struct {
	EventID   string           `json:"event_id"`
	UserID    string           `json:"user_id"`
	Location  [2]float64       `json:"location"`
	Timestamp string           `json:"timestamp"`
	AlertType string           `json:"alert_type"`
	Contacts  []PayloadContact `json:"contacts"`
}

// PayloadContact is a contact as sent downstream.
type PayloadContact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// NewPayload converts a notification into its wire format.
func NewPayload(n Notification) Payload {
	contacts := make([]PayloadContact, 0, len(n.Contacts))
	for _, c := range n.Contacts {
		contacts = append(contacts, PayloadContact{Name: c.Name, Phone: c.Phone})
	}
	return Payload{
		EventID:   n.Event.ID,
		UserID:    n.Event.UserID,
		Location:  n.Event.Location.Pair(),
		Timestamp: n.Event.Timestamp.UTC().Format(time.RFC3339),
		AlertType: string(n.Event.Kind),
		Contacts:  contacts,
	}
}
