package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubNotifierName identifies the Pub/Sub notifier.
const PubSubNotifierName = "alert-pubsub"

// publishFunc publishes one message and waits for the server acknowledgement.
type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// PubSubConfig holds configuration for the Pub/Sub notifier.
type PubSubConfig struct {
	ProjectID string
	Topic     string
	Logger    zerolog.Logger
}

// PubSubNotifier publishes alerts to a Pub/Sub topic for downstream responders.
type PubSubNotifier struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	publish   publishFunc
	topic     string
	logger    zerolog.Logger
}

var _ Notifier = (*PubSubNotifier)(nil)

// NewPubSubNotifier connects to Pub/Sub and prepares a publisher for the topic.
func NewPubSubNotifier(ctx context.Context, cfg PubSubConfig) (*PubSubNotifier, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	publisher := client.Publisher(cfg.Topic)
	n := newPubSubNotifier(cfg.Topic, func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return publisher.Publish(ctx, msg).Get(ctx)
	}, cfg.Logger)
	n.client = client
	n.publisher = publisher
	return n, nil
}

func newPubSubNotifier(topic string, publish publishFunc, logger zerolog.Logger) *PubSubNotifier {
	return &PubSubNotifier{
		publish: publish,
		topic:   topic,
		logger:  logger,
	}
}

// Name returns the notifier name.
func (n *PubSubNotifier) Name() string {
	return PubSubNotifierName
}

// Notify publishes the alert payload with an alert_type attribute.
func (n *PubSubNotifier) Notify(ctx context.Context, notification Notification) error {
	data, err := json.Marshal(NewPayload(notification))
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"alert_type": string(notification.Event.Kind),
			"user_id":    notification.Event.UserID,
		},
	}

	id, err := n.publish(ctx, msg)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", n.topic, err)
	}

	n.logger.Debug().
		Str("alert_id", notification.Event.ID).
		Str("message_id", id).
		Str("topic", n.topic).
		Msg("alert published")

	return nil
}

// Close flushes pending messages and closes the client.
func (n *PubSubNotifier) Close() error {
	if n.publisher != nil {
		n.publisher.Stop()
	}
	if n.client != nil {
		return n.client.Close()
	}
	return nil
}
