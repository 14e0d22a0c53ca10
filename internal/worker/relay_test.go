package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hershield/hershield/internal/alert"
)

type mockDeliverer struct {
	mu       sync.Mutex
	err      error
	payloads []alert.Payload
}

func (m *mockDeliverer) Deliver(_ context.Context, p alert.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, p)
	return m.err
}

var relayNow = time.Date(2024, 3, 13, 21, 30, 0, 0, time.UTC)

func newTestRelay(d Deliverer) *Relay {
	r := NewRelay(RelayConfig{}, d, zerolog.Nop())
	r.now = func() time.Time { return relayNow }
	return r
}

func sosPayload(raisedAt time.Time) alert.Payload {
	return alert.Payload{
		EventID:   "evt-1",
		UserID:    "usr_priya",
		Location:  [2]float64{28.6315, 77.2167},
		Timestamp: raisedAt.UTC().Format(time.RFC3339),
		AlertType: string(alert.KindSOS),
		Contacts:  []alert.PayloadContact{{Name: "Meera", Phone: "+91 98100 00000"}},
	}
}

func encode(t *testing.T, p alert.Payload) []byte {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return data
}

func TestDefaultRelayConfig(t *testing.T) {
	cfg := RelayConfig{MaxAge: 10 * time.Minute}.withDefaults()

	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.MaxAge)
	assert.Equal(t, 10, cfg.MaxOutstanding)
	assert.Equal(t, 5*time.Minute, cfg.MaxExtension)
}

func TestRelay_DeliversAndAcks(t *testing.T) {
	d := &mockDeliverer{}
	r := newTestRelay(d)
	payload := sosPayload(relayNow.Add(-time.Minute))

	outcome := r.Handle(context.Background(), encode(t, payload))

	assert.Equal(t, Ack, outcome)
	require.Len(t, d.payloads, 1)
	assert.Equal(t, payload, d.payloads[0])

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.Received)
	assert.Equal(t, int64(1), stats.Delivered)
	assert.Equal(t, relayNow, stats.LastDeliveryAt)
}

func TestRelay_DeliveryFailureNacks(t *testing.T) {
	d := &mockDeliverer{err: errors.New("webhook returned status 503")}
	r := newTestRelay(d)

	outcome := r.Handle(context.Background(), encode(t, sosPayload(relayNow)))

	assert.Equal(t, Nack, outcome)
	assert.Equal(t, "nack", outcome.String())
	stats := r.Stats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, "webhook returned status 503", stats.LastError)
}

func TestRelay_DropsUndeliverable(t *testing.T) {
	valid := sosPayload(relayNow)

	noUser := valid
	noUser.UserID = ""
	badKind := valid
	badKind.AlertType = "PANIC"
	badTime := valid
	badTime.Timestamp = "yesterday"

	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("{not json")},
		{"missing user", encode(t, noUser)},
		{"unknown kind", encode(t, badKind)},
		{"bad timestamp", encode(t, badTime)},
		{"expired", encode(t, sosPayload(relayNow.Add(-2*time.Hour)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &mockDeliverer{}
			r := newTestRelay(d)

			assert.Equal(t, Ack, r.Handle(context.Background(), tt.data))
			assert.Empty(t, d.payloads)
			assert.Equal(t, int64(1), r.Stats().Dropped)
		})
	}
}

func TestRelay_WithWebhookNotifier(t *testing.T) {
	var got alert.Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trigger_alert", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	webhook := alert.NewWebhookNotifier(alert.WebhookConfig{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})
	r := newTestRelay(webhook)
	payload := sosPayload(relayNow.Add(-30 * time.Second))

	assert.Equal(t, Ack, r.Handle(context.Background(), encode(t, payload)))
	assert.Equal(t, payload, got)
}
