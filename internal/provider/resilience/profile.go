// Package resilience wraps outbound HTTP calls (safety oracle, geocoder, alert
// webhook) with circuit breakers, timeouts and retries, and tracks their health.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Profile tunes one kind of upstream: how long a call may take, how often it
// is retried, and when its breaker opens.
type Profile struct {
	// Timeout bounds each attempt, not the whole call.
	Timeout time.Duration

	// Retries is the number of attempts after the first. Zero disables retries.
	Retries int

	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// Trip decides when a closed breaker opens.
	Trip func(gobreaker.Counts) bool

	// Cooldown is how long an open breaker rejects calls before it lets
	// Probes requests through to test the upstream.
	Cooldown time.Duration
	Probes   uint32
}

var (
	// ScoringProfile suits the safety oracle. Planning waits on it, so a slow
	// oracle gets one quick retry before the fallback scores take over.
	ScoringProfile = Profile{
		Timeout:        2 * time.Second,
		Retries:        1,
		BackoffInitial: 50 * time.Millisecond,
		BackoffMax:     200 * time.Millisecond,
		Trip:           TripOnFailureRatio(5, 0.5),
		Cooldown:       30 * time.Second,
		Probes:         1,
	}

	// GeocodeProfile suits the place search. It is not retried because the
	// geocoder already issues a second query without the region suffix.
	GeocodeProfile = Profile{
		Timeout:  5 * time.Second,
		Trip:     TripOnFailureRatio(5, 0.5),
		Cooldown: time.Minute,
		Probes:   1,
	}

	// AlertProfile suits alert delivery. It retries harder than the others
	// and probes again soon after tripping, so a recovered endpoint starts
	// receiving alerts quickly.
	AlertProfile = Profile{
		Timeout:        5 * time.Second,
		Retries:        2,
		BackoffInitial: 100 * time.Millisecond,
		BackoffMax:     2 * time.Second,
		Trip:           TripAfterConsecutive(3),
		Cooldown:       10 * time.Second,
		Probes:         1,
	}
)

// TripOnFailureRatio opens the breaker once at least minRequests calls were
// made in the current window and the failure ratio reached ratio.
func TripOnFailureRatio(minRequests uint32, ratio float64) func(gobreaker.Counts) bool {
	return func(c gobreaker.Counts) bool {
		return c.Requests >= minRequests && float64(c.TotalFailures)/float64(c.Requests) >= ratio
	}
}

// TripAfterConsecutive opens the breaker after n failures in a row.
func TripAfterConsecutive(n uint32) func(gobreaker.Counts) bool {
	return func(c gobreaker.Counts) bool {
		return c.ConsecutiveFailures >= n
	}
}

func (p Profile) breakerSettings(name string, onChange func(string, gobreaker.State, gobreaker.State)) gobreaker.Settings {
	trip := p.Trip
	if trip == nil {
		trip = TripOnFailureRatio(5, 0.5)
	}
	return gobreaker.Settings{
		Name:          name,
		MaxRequests:   max(p.Probes, 1),
		Timeout:       p.Cooldown,
		ReadyToTrip:   trip,
		OnStateChange: onChange,
	}
}
