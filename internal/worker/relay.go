package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/alert"
)

// Deliverer forwards an alert payload to responders.
type Deliverer interface {
	Deliver(ctx context.Context, payload alert.Payload) error
}

// Outcome tells the message source what to do with a message.
type Outcome int

const (
	// Ack removes the message: it was delivered or can never be delivered.
	Ack Outcome = iota

	// Nack requests redelivery after a transient failure.
	Nack
)

func (o Outcome) String() string {
	if o == Nack {
		return "nack"
	}
	return "ack"
}

var (
	errMalformed = errors.New("malformed alert payload")
	errExpired   = errors.New("alert expired")
)

// Relay decodes alert payloads and delivers them.
type Relay struct {
	config    RelayConfig
	deliverer Deliverer
	logger    zerolog.Logger
	now       func() time.Time

	stats *RelayStats
}

// RelayStats tracks relay statistics.
type RelayStats struct {
	mu sync.RWMutex

	Received  int64
	Delivered int64
	Failed    int64
	Dropped   int64

	LastDeliveryAt time.Time
	LastError      string
}

// NewRelay creates a relay. Zero config fields use DefaultRelayConfig.
func NewRelay(cfg RelayConfig, deliverer Deliverer, logger zerolog.Logger) *Relay {
	return &Relay{
		config:    cfg.withDefaults(),
		deliverer: deliverer,
		logger:    logger.With().Str("component", "alert_relay").Logger(),
		now:       time.Now,
		stats:     &RelayStats{},
	}
}

// Config returns the effective configuration.
func (r *Relay) Config() RelayConfig {
	return r.config
}

// Handle processes one message body. Malformed and expired alerts are
// acknowledged without delivery; delivery failures are retried via Nack.
func (r *Relay) Handle(ctx context.Context, data []byte) Outcome {
	r.stats.mu.Lock()
	r.stats.Received++
	r.stats.mu.Unlock()

	payload, err := r.decode(data)
	if err != nil {
		r.logger.Error().Err(err).Int("size_bytes", len(data)).Msg("dropping alert")
		r.record(func(s *RelayStats) {
			s.Dropped++
			s.LastError = err.Error()
		})
		return Ack
	}

	logger := r.logger.With().
		Str("alert_id", payload.EventID).
		Str("alert_kind", payload.AlertType).
		Str("user_id", payload.UserID).
		Logger()

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	start := r.now()
	if err := r.deliverer.Deliver(ctx, *payload); err != nil {
		logger.Warn().Err(err).Msg("alert delivery failed, requesting redelivery")
		r.record(func(s *RelayStats) {
			s.Failed++
			s.LastError = err.Error()
		})
		return Nack
	}

	logger.Info().
		Dur("duration", r.now().Sub(start)).
		Msg("alert relayed")
	r.record(func(s *RelayStats) {
		s.Delivered++
		s.LastDeliveryAt = r.now()
	})
	return Ack
}

func (r *Relay) decode(data []byte) (*alert.Payload, error) {
	var payload alert.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}
	if payload.EventID == "" || payload.UserID == "" {
		return nil, fmt.Errorf("%w: missing event_id or user_id", errMalformed)
	}
	if _, err := alert.ParseKind(payload.AlertType); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}

	ts, err := time.Parse(time.RFC3339, payload.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %w", errMalformed, err)
	}
	if age := r.now().Sub(ts); age > r.config.MaxAge {
		return nil, fmt.Errorf("%w: raised %s ago", errExpired, age.Round(time.Second))
	}
	return &payload, nil
}

func (r *Relay) record(update func(*RelayStats)) {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()
	update(r.stats)
}

// Stats returns a snapshot of the relay statistics.
func (r *Relay) Stats() RelayStats {
	r.stats.mu.RLock()
	defer r.stats.mu.RUnlock()

	return RelayStats{
		Received:       r.stats.Received,
		Delivered:      r.stats.Delivered,
		Failed:         r.stats.Failed,
		Dropped:        r.stats.Dropped,
		LastDeliveryAt: r.stats.LastDeliveryAt,
		LastError:      r.stats.LastError,
	}
}
