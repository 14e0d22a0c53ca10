// Package worker relays alerts published on Pub/Sub to the responder webhook.
package worker

import (
	"time"
)

// RelayConfig holds configuration for the alert relay.
type RelayConfig struct {
	// Timeout bounds each delivery attempt.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxAge is how old an alert may be and still be delivered. Older alerts
	// are acknowledged and dropped, since responders cannot act on them.
	// Default: 1 hour
	MaxAge time.Duration

	// MaxOutstanding is the number of messages processed concurrently.
	// Default: 10
	MaxOutstanding int

	// MaxExtension is how long a message's ack deadline is extended while it is processed.
	// Default: 5 minutes
	MaxExtension time.Duration
}

// DefaultRelayConfig returns the default relay configuration.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Timeout:        10 * time.Second,
		MaxAge:         time.Hour,
		MaxOutstanding: 10,
		MaxExtension:   5 * time.Minute,
	}
}

// withDefaults fills zero fields from DefaultRelayConfig.
func (c RelayConfig) withDefaults() RelayConfig {
	d := DefaultRelayConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxAge <= 0 {
		c.MaxAge = d.MaxAge
	}
	if c.MaxOutstanding <= 0 {
		c.MaxOutstanding = d.MaxOutstanding
	}
	if c.MaxExtension <= 0 {
		c.MaxExtension = d.MaxExtension
	}
	return c
}
