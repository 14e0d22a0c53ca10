package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/provider/resilience"
)

const (
	// WebhookNotifierName identifies the webhook notifier.
	WebhookNotifierName = "alert-webhook"

	// DefaultWebhookTimeout is the default request timeout.
	DefaultWebhookTimeout = 5 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookConfig holds configuration for the webhook notifier.
type WebhookConfig struct {
	// BaseURL is the alert service base URL (required).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with the alert circuit breaker.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 5s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for notifier operations.
	Logger zerolog.Logger
}

// WebhookNotifier POSTs alerts to {BaseURL}/trigger_alert.
type WebhookNotifier struct {
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier creates a new webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultWebhookTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		profile := resilience.AlertProfile
		profile.Timeout = timeout
		httpClient = resilience.NewClient(WebhookNotifierName, profile, resilience.Options{
			Registry: cfg.Registry,
			Logger:   cfg.Logger,
		})
	}

	return &WebhookNotifier{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the notifier name.
func (n *WebhookNotifier) Name() string {
	return WebhookNotifierName
}

// Notify sends the alert. Any non-2xx status is a delivery failure.
func (n *WebhookNotifier) Notify(ctx context.Context, notification Notification) error {
	return n.Deliver(ctx, NewPayload(notification))
}

// Deliver posts an already encoded payload. The alert relay worker uses it
// to forward payloads received from Pub/Sub unchanged.
func (n *WebhookNotifier) Deliver(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/trigger_alert", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("posting alert: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}

	n.logger.Debug().
		Str("alert_id", payload.EventID).
		Int("status", resp.StatusCode).
		Msg("alert acknowledged")

	return nil
}
