package alert

import "sync"

const (
	// DefaultRecentWindow is the number of events Recent returns when n <= 0.
	DefaultRecentWindow = 5

	// MaxRecentWindow caps the size of a Recent view.
	MaxRecentWindow = 100
)

// Log is an append-only, in-process record of alert events.
// Only a Dispatcher appends to it.
type Log struct {
	mu     sync.RWMutex
	events []Event
}

// NewLog creates an empty alert log.
func NewLog() *Log {
	return &Log{}
}

func (l *Log) append(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

// Recent returns up to n of the newest events, oldest first.
func (l *Log) Recent(n int) []Event {
	if n <= 0 {
		n = DefaultRecentWindow
	}
	if n > MaxRecentWindow {
		n = MaxRecentWindow
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	start := len(l.events) - n
	if start < 0 {
		start = 0
	}
	out := make([]Event, len(l.events)-start)
	copy(out, l.events[start:])
	return out
}

// All returns every recorded event, oldest first.
func (l *Log) All() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
