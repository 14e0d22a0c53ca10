package worker

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// SubscriptionConfig names the alert subscription a relay drains.
type SubscriptionConfig struct {
	ProjectID string
	Name      string
	Relay     *Relay
	Logger    zerolog.Logger
}

// Subscription receives published alerts and settles each message with
// the relay's outcome.
type Subscription struct {
	client     *pubsub.Client
	subscriber *pubsub.Subscriber
	name       string
	relay      *Relay
	logger     zerolog.Logger
}

// settler is the part of a received message the relay outcome acts on.
type settler interface {
	Ack()
	Nack()
}

// NewSubscription connects to Pub/Sub and sizes flow control from the
// relay configuration.
func NewSubscription(ctx context.Context, cfg SubscriptionConfig) (*Subscription, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client for %s: %w", cfg.ProjectID, err)
	}

	limits := cfg.Relay.Config()
	subscriber := client.Subscriber(cfg.Name)
	subscriber.ReceiveSettings.MaxOutstandingMessages = limits.MaxOutstanding
	subscriber.ReceiveSettings.MaxExtension = limits.MaxExtension

	return &Subscription{
		client:     client,
		subscriber: subscriber,
		name:       cfg.Name,
		relay:      cfg.Relay,
		logger:     cfg.Logger.With().Str("subscription", cfg.Name).Logger(),
	}, nil
}

// Run blocks relaying alerts until ctx is cancelled or receiving fails.
func (s *Subscription) Run(ctx context.Context) error {
	s.logger.Info().
		Int("max_outstanding", s.relay.Config().MaxOutstanding).
		Msg("alert subscription open")

	return s.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		attempt := 0
		if msg.DeliveryAttempt != nil {
			attempt = *msg.DeliveryAttempt
		}
		s.logger.Debug().
			Str("message_id", msg.ID).
			Str("alert_kind", msg.Attributes["alert_type"]).
			Int("delivery_attempt", attempt).
			Dur("queued_for", s.relay.now().Sub(msg.PublishTime)).
			Msg("alert message received")

		settle(msg, s.relay.Handle(ctx, msg.Data))
	})
}

// Close releases the Pub/Sub client.
func (s *Subscription) Close() error {
	return s.client.Close()
}

func settle(msg settler, outcome Outcome) {
	if outcome == Nack {
		msg.Nack()
		return
	}
	msg.Ack()
}
