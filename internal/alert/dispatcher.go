package alert

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultNotifyTimeout bounds each notifier call.
const DefaultNotifyTimeout = 5 * time.Second

// Recorder receives alert metrics.
type Recorder interface {
	RecordAlert(ctx context.Context, kind string)
	RecordDeliveryFailure(ctx context.Context, notifier string)
}

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	// Notifiers receive every event. May be empty.
	Notifiers []Notifier

	// Archive receives a durable copy of every event (optional).
	Archive Archive

	// NotifyTimeout bounds each notifier call (default: 5s).
	NotifyTimeout time.Duration

	// Metrics records alert counters (optional).
	Metrics Recorder

	// Logger for dispatch operations.
	Logger zerolog.Logger
}

// Dispatcher records alerts and fans them out to notifiers.
// A single Dispatcher is shared by all users; each user owns their own Log.
type Dispatcher struct {
	notifiers []Notifier
	archive   Archive
	timeout   time.Duration
	metrics   Recorder
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	timeout := cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	return &Dispatcher{
		notifiers: cfg.Notifiers,
		archive:   cfg.Archive,
		timeout:   timeout,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// NotifierNames returns the names of the configured notifiers.
func (d *Dispatcher) NotifierNames() []string {
	names := make([]string, len(d.notifiers))
	for i, n := range d.notifiers {
		names[i] = n.Name()
	}
	return names
}

// Dispatch records the event in log and then notifies every notifier.
// The event is always recorded: notifier and archive failures only degrade
// delivery and are reported through the returned Delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, log *Log, req Request) (Event, Delivery) {
	event := Event{
		ID:        uuid.New().String(),
		Kind:      req.Kind,
		UserID:    req.UserID,
		Location:  req.Location,
		Timestamp: d.now().UTC(),
	}
	log.append(event)

	logger := d.logger.With().
		Str("alert_id", event.ID).
		Str("alert_kind", string(event.Kind)).
		Str("user_id", event.UserID).
		Logger()

	logger.Info().
		Float64("lat", event.Location.Lat).
		Float64("lon", event.Location.Lon).
		Int("contacts", len(req.Contacts)).
		Msg("alert raised")

	if d.metrics != nil {
		d.metrics.RecordAlert(ctx, string(event.Kind))
	}

	// The caller going away must not cancel delivery of a recorded alert.
	ctx = context.WithoutCancel(ctx)

	if d.archive != nil {
		archiveCtx, cancel := context.WithTimeout(ctx, d.timeout)
		if err := d.archive.Append(archiveCtx, event); err != nil {
			logger.Warn().Err(err).Msg("alert archive failed")
		}
		cancel()
	}

	delivery := d.fanOut(ctx, Notification{Event: event, Contacts: req.Contacts})

	for _, a := range delivery.Failed() {
		logger.Warn().
			Err(a.Err).
			Str("notifier", a.Notifier).
			Dur("duration", a.Duration).
			Msg("alert delivery degraded")
		if d.metrics != nil {
			d.metrics.RecordDeliveryFailure(ctx, a.Notifier)
		}
	}

	return event, delivery
}

// fanOut calls every notifier concurrently and waits for all of them.
func (d *Dispatcher) fanOut(ctx context.Context, n Notification) Delivery {
	attempts := make([]Attempt, len(d.notifiers))

	var wg sync.WaitGroup
	for i, notifier := range d.notifiers {
		wg.Add(1)
		go func(i int, notifier Notifier) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			start := time.Now()
			err := notifier.Notify(callCtx, n)
			attempts[i] = Attempt{
				Notifier: notifier.Name(),
				Err:      err,
				Duration: time.Since(start),
			}
		}(i, notifier)
	}
	wg.Wait()

	return Delivery{Attempts: attempts}
}
