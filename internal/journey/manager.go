package journey

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/alert"
	"github.com/hershield/hershield/internal/geo"
	"github.com/hershield/hershield/internal/monitor"
)

// Config holds the collaborators shared by every journey.
type Config struct {
	Geocoder   Geocoder
	Scorer     Scorer
	Dispatcher *alert.Dispatcher

	// Monitor configures deviation detection for new sessions.
	Monitor monitor.DeviationMonitor

	// DefaultLocation is used for SOS when no position is known.
	DefaultLocation geo.Coordinate

	// Metrics counts deviations (optional).
	Metrics monitor.DeviationRecorder

	Logger zerolog.Logger
}

// Manager owns one Journey per user identity.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	journeys map[string]*Journey
}

// NewManager creates a journey manager.
func NewManager(cfg Config) *Manager {
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = alert.NewDispatcher(alert.DispatcherConfig{Logger: cfg.Logger})
	}
	return &Manager{
		cfg:      cfg,
		journeys: make(map[string]*Journey),
	}
}

// Get returns the journey of userID, creating it on first use.
func (m *Manager) Get(userID string) *Journey {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.journeys[userID]
	if !ok {
		j = newJourney(userID, m.cfg)
		m.journeys[userID] = j
	}
	return j
}

// Remove forgets the journey of userID.
func (m *Manager) Remove(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.journeys, userID)
}

// Len returns the number of journeys.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.journeys)
}
