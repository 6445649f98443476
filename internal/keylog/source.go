package keylog

import (
	"context"
	"time"
)

// Source defines the interface that every key event producer must implement.
type Source interface {
	// ID returns the source identifier (e.g. "terminal", "script").
	ID() string

	// Start begins delivering events to sink. Sink may be called from any
	// goroutine until Stop returns.
	Start(ctx context.Context, sink Sink) error

	// Stop releases the source. No sink calls happen after it returns.
	Stop() error
}

// Sink receives one event per discrete input event.
type Sink func(Event)

// Event represents a single key event emitted by a source.
type Event struct {
	Timestamp time.Time
	Source    string
	Kind      EventKind
	Key       string
}

// EventKind distinguishes presses from releases.
type EventKind int

const (
	KindPress EventKind = iota + 1
	KindRelease
)

func (k EventKind) String() string {
	switch k {
	case KindPress:
		return "press"
	case KindRelease:
		return "release"
	}
	return "unknown"
}

// ParseEventKind maps "press"/"release" to an EventKind. Empty means press.
func ParseEventKind(s string) (EventKind, bool) {
	switch s {
	case "", "press", "down":
		return KindPress, true
	case "release", "up":
		return KindRelease, true
	}
	return 0, false
}
