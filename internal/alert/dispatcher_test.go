package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hershield/hershield/internal/contact"
	"github.com/hershield/hershield/internal/geo"
)

var indiaGate = geo.Coordinate{Lat: 28.6129, Lon: 77.2295}

// mockNotifier records notifications and optionally fails or stalls.
type mockNotifier struct {
	name  string
	err   error
	delay time.Duration

	mu       sync.Mutex
	received []Notification
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Notify(ctx context.Context, n Notification) error {
	m.mu.Lock()
	m.received = append(m.received, n)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func (m *mockNotifier) notifications() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.received...)
}

type mockArchive struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *mockArchive) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	alerts   []string
	failures []string
}

func (r *recordingMetrics) RecordAlert(_ context.Context, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, kind)
}

func (r *recordingMetrics) RecordDeliveryFailure(_ context.Context, notifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, notifier)
}

func TestDispatch_RecordsAndNotifies(t *testing.T) {
	webhook := &mockNotifier{name: "webhook"}
	archive := &mockArchive{}
	metrics := &recordingMetrics{}
	d := NewDispatcher(DispatcherConfig{
		Notifiers: []Notifier{webhook},
		Archive:   archive,
		Metrics:   metrics,
		Logger:    zerolog.Nop(),
	})
	fixed := time.Date(2024, 3, 15, 21, 30, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	contacts := []contact.Contact{{ID: "c1", Name: "Mom", Phone: "+91 100"}}
	log := NewLog()

	event, delivery := d.Dispatch(context.Background(), log, Request{
		Kind:     KindSOS,
		UserID:   "user-1",
		Location: indiaGate,
		Contacts: contacts,
	})

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, KindSOS, event.Kind)
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, indiaGate, event.Location)
	assert.Equal(t, fixed, event.Timestamp)

	require.Equal(t, 1, log.Len())
	assert.Equal(t, event, log.All()[0])

	assert.Equal(t, 1, delivery.Delivered())
	assert.False(t, delivery.Degraded())

	got := webhook.notifications()
	require.Len(t, got, 1)
	assert.Equal(t, event, got[0].Event)
	assert.Equal(t, contacts, got[0].Contacts)

	assert.Equal(t, []Event{event}, archive.events)
	assert.Equal(t, []string{"SOS"}, metrics.alerts)
	assert.Empty(t, metrics.failures)
}

func TestDispatch_FailingNotifierStillRecords(t *testing.T) {
	failing := &mockNotifier{name: "webhook", err: errors.New("connection refused")}
	healthy := &mockNotifier{name: "pubsub"}
	metrics := &recordingMetrics{}
	d := NewDispatcher(DispatcherConfig{
		Notifiers: []Notifier{failing, healthy},
		Metrics:   metrics,
	})
	log := NewLog()

	event, delivery := d.Dispatch(context.Background(), log, Request{Kind: KindDeviation, Location: indiaGate})

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, 1, log.Len(), "the event is recorded even when delivery fails")
	assert.True(t, delivery.Degraded())
	assert.Equal(t, 1, delivery.Delivered())

	failed := delivery.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "webhook", failed[0].Notifier)
	assert.EqualError(t, failed[0].Err, "connection refused")

	require.Len(t, delivery.Attempts, 2)
	assert.Equal(t, "webhook", delivery.Attempts[0].Notifier, "attempts keep notifier order")
	assert.Equal(t, "pubsub", delivery.Attempts[1].Notifier)

	assert.Equal(t, []string{"webhook"}, metrics.failures)
}

func TestDispatch_NotifierTimeout(t *testing.T) {
	slow := &mockNotifier{name: "slow", delay: time.Second}
	d := NewDispatcher(DispatcherConfig{
		Notifiers:     []Notifier{slow},
		NotifyTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	_, delivery := d.Dispatch(context.Background(), NewLog(), Request{Kind: KindSOS, Location: indiaGate})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.True(t, delivery.Degraded())
	assert.ErrorIs(t, delivery.Failed()[0].Err, context.DeadlineExceeded)
}

func TestDispatch_CanceledCallerStillDelivers(t *testing.T) {
	webhook := &mockNotifier{name: "webhook", delay: 10 * time.Millisecond}
	d := NewDispatcher(DispatcherConfig{Notifiers: []Notifier{webhook}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, delivery := d.Dispatch(ctx, NewLog(), Request{Kind: KindSOS, Location: indiaGate})
	assert.False(t, delivery.Degraded())
}

func TestDispatch_ArchiveFailureIsNotFatal(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Archive: &mockArchive{err: errors.New("db down")}})
	log := NewLog()

	_, delivery := d.Dispatch(context.Background(), log, Request{Kind: KindSOS, Location: indiaGate})
	assert.Equal(t, 1, log.Len())
	assert.False(t, delivery.Degraded())
	assert.Empty(t, delivery.Attempts)
}

func TestDispatch_UniqueIDs(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})
	log := NewLog()

	a, _ := d.Dispatch(context.Background(), log, Request{Kind: KindSOS, Location: indiaGate})
	b, _ := d.Dispatch(context.Background(), log, Request{Kind: KindSOS, Location: indiaGate})
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, log.Len())
}

func TestDispatcher_NotifierNames(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Notifiers: []Notifier{
		&mockNotifier{name: "alert-webhook"},
		&mockNotifier{name: "alert-pubsub"},
	}})
	assert.Equal(t, []string{"alert-webhook", "alert-pubsub"}, d.NotifierNames())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("SOS")
	require.NoError(t, err)
	assert.Equal(t, KindSOS, k)

	k, err = ParseKind("DEVIATION")
	require.NoError(t, err)
	assert.Equal(t, KindDeviation, k)

	_, err = ParseKind("sos")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNewPayload(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	p := NewPayload(Notification{
		Event: Event{
			ID:        "evt-1",
			Kind:      KindDeviation,
			UserID:    "user-1",
			Location:  indiaGate,
			Timestamp: time.Date(2024, 3, 16, 3, 0, 0, 0, ist),
		},
	})

	assert.Equal(t, "2024-03-15T21:30:00Z", p.Timestamp)
	assert.Equal(t, [2]float64{28.6129, 77.2295}, p.Location)
	assert.Equal(t, "DEVIATION", p.AlertType)
	assert.NotNil(t, p.Contacts, "contacts encode as an empty list, not null")
}
