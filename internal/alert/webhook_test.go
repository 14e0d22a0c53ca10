package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hershield/hershield/internal/contact"
	"github.com/hershield/hershield/internal/provider/resilience"
)

func sosNotification() Notification {
	return Notification{
		Event: Event{
			ID:        "evt-1",
			Kind:      KindSOS,
			UserID:    "user-1",
			Location:  indiaGate,
			Timestamp: time.Date(2024, 3, 15, 21, 30, 0, 0, time.UTC),
		},
		Contacts: []contact.Contact{{ID: "c1", Name: "Mom", Phone: "+91 100"}},
	}
}

func TestWebhookNotifier_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/trigger_alert", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user-1", body["user_id"])
		assert.Equal(t, "SOS", body["alert_type"])
		assert.Equal(t, "2024-03-15T21:30:00Z", body["timestamp"])
		assert.Equal(t, []any{28.6129, 77.2295}, body["location"])
		assert.Len(t, body["contacts"], 1)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{
		BaseURL:    server.URL + "/",
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})

	require.NoError(t, n.Notify(context.Background(), sosNotification()))
	assert.Equal(t, WebhookNotifierName, n.Name())
}

func TestWebhookNotifier_Non2xxFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{BaseURL: server.URL, HTTPClient: server.Client()})
	err := n.Notify(context.Background(), sosNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestWebhookNotifier_ResilientClientRetriesAndTracksHealth(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	n := NewWebhookNotifier(WebhookConfig{BaseURL: server.URL, Registry: registry})

	require.NoError(t, n.Notify(context.Background(), sosNotification()))
	assert.Equal(t, int32(2), calls.Load(), "a 5xx is retried")

	health, ok := registry.Health(WebhookNotifierName)
	require.True(t, ok)
	assert.True(t, health.IsHealthy())
}

func TestWebhookNotifier_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	n := NewWebhookNotifier(WebhookConfig{BaseURL: url, HTTPClient: http.DefaultClient})
	assert.Error(t, n.Notify(context.Background(), sosNotification()))
}

func TestWebhookNotifier_WithDispatcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := NewDispatcher(DispatcherConfig{
		Notifiers: []Notifier{NewWebhookNotifier(WebhookConfig{BaseURL: server.URL, HTTPClient: server.Client()})},
	})
	log := NewLog()

	event, delivery := d.Dispatch(context.Background(), log, Request{Kind: KindSOS, UserID: "user-1", Location: indiaGate})
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, 1, log.Len())
	assert.True(t, delivery.Degraded())
}
