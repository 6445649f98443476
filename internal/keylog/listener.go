package keylog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ListenerState represents the lifecycle state of a listener.
type ListenerState int

const (
	ListenerIdle ListenerState = iota + 1
	ListenerListening
	ListenerStopped
)

func (s ListenerState) String() string {
	switch s {
	case ListenerIdle:
		return "idle"
	case ListenerListening:
		return "listening"
	case ListenerStopped:
		return "stopped"
	}
	return "unknown"
}

// ListenerConfig holds the buffer settings for a listener.
type ListenerConfig struct {
	Capacity int
	Overflow OverflowPolicy
	Filter   Filter
	Logger   *slog.Logger
}

// BufferStats is a point-in-time snapshot of one buffer.
type BufferStats struct {
	Pending  int
	Accepted uint64
	Dropped  uint64
}

// ListenerStats reports both buffers plus events the filter rejected.
type ListenerStats struct {
	State    ListenerState
	Presses  BufferStats
	Releases BufferStats
	Filtered uint64
}

// Listener connects a Source to a pair of independent press and release
// buffers and enforces the Start/Stop lifecycle.
type Listener struct {
	source  Source
	filter  Filter
	logger  *slog.Logger
	presses *EventBuffer
	release *EventBuffer

	filtered atomic.Uint64

	mu     sync.Mutex
	state  ListenerState
	cancel context.CancelFunc
}

// NewListener creates an idle listener for src.
func NewListener(src Source, cfg ListenerConfig) (*Listener, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidArgument)
	}
	if err := cfg.Filter.Validate(); err != nil {
		return nil, err
	}
	presses, err := NewEventBuffer(cfg.Capacity, WithOverflowPolicy(cfg.Overflow))
	if err != nil {
		return nil, err
	}
	release, err := NewEventBuffer(cfg.Capacity, WithOverflowPolicy(cfg.Overflow))
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		source:  src,
		filter:  cfg.Filter,
		logger:  logger.With("source", src.ID()),
		presses: presses,
		release: release,
		state:   ListenerIdle,
	}, nil
}

// Start acquires the source and begins buffering its events.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case ListenerListening:
		return ErrListenerAlreadyStarted
	case ListenerStopped:
		return ErrListenerStopped
	}

	srcCtx, cancel := context.WithCancel(ctx)
	if err := l.source.Start(srcCtx, l.sink); err != nil {
		cancel()
		return fmt.Errorf("start source %q: %w", l.source.ID(), err)
	}
	l.cancel = cancel
	l.state = ListenerListening
	l.logger.Debug("listener started", "capacity", l.presses.Cap(), "overflow", l.presses.Policy().String())
	return nil
}

// Stop releases the source. The listener cannot be restarted.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case ListenerIdle:
		return ErrListenerNotStarted
	case ListenerStopped:
		return ErrListenerStopped
	}

	err := l.source.Stop()
	l.cancel()
	l.state = ListenerStopped
	l.logger.Debug("listener stopped",
		"dropped_presses", l.presses.Dropped(),
		"dropped_releases", l.release.Dropped(),
	)
	if err != nil {
		return fmt.Errorf("stop source %q: %w", l.source.ID(), err)
	}
	return nil
}

// Run starts the listener, calls fn, and always stops the listener afterwards,
// even if fn returns an error or panics.
func (l *Listener) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := l.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if stopErr := l.Stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}()
	return fn(ctx)
}

// DrainPresses returns all press events buffered since the previous call.
func (l *Listener) DrainPresses() ([]SequencedEvent, error) {
	if err := l.checkDrain(); err != nil {
		return nil, err
	}
	return l.presses.Drain(), nil
}

// DrainReleases returns all release events buffered since the previous call.
func (l *Listener) DrainReleases() ([]SequencedEvent, error) {
	if err := l.checkDrain(); err != nil {
		return nil, err
	}
	return l.release.Drain(), nil
}

// Notify returns a channel signalled whenever either buffer has pending events.
// The returned cancel func releases the subscription.
func (l *Listener) Notify() (<-chan struct{}, func()) {
	out := make(chan struct{}, 1)
	pch := l.presses.Subscribe()
	rch := l.release.Subscribe()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case _, ok := <-pch:
				if !ok {
					return
				}
			case _, ok := <-rch:
				if !ok {
					return
				}
			case <-done:
				return
			}
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			l.presses.Unsubscribe(pch)
			l.release.Unsubscribe(rch)
		})
	}
}

// State returns the current lifecycle state.
func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Stats returns counters for both buffers.
func (l *Listener) Stats() ListenerStats {
	return ListenerStats{
		State:    l.State(),
		Presses:  bufferStats(l.presses),
		Releases: bufferStats(l.release),
		Filtered: l.filtered.Load(),
	}
}

func bufferStats(b *EventBuffer) BufferStats {
	return BufferStats{
		Pending:  b.Len(),
		Accepted: b.LastSeq(),
		Dropped:  b.Dropped(),
	}
}

func (l *Listener) checkDrain() error {
	switch l.State() {
	case ListenerIdle:
		return ErrListenerNotStarted
	case ListenerStopped:
		return ErrListenerStopped
	}
	return nil
}

// sink is handed to the source. It never blocks the producer.
func (l *Listener) sink(e Event) {
	if !l.filter.Admit(e.Key) {
		l.filtered.Add(1)
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Source == "" {
		e.Source = l.source.ID()
	}
	if e.Kind == 0 {
		e.Kind = KindPress
	}

	buf := l.presses
	if e.Kind == KindRelease {
		buf = l.release
	}
	if _, err := buf.Push(e); err != nil {
		l.logger.Debug("key event overflow", "kind", e.Kind.String(), "error", err)
	}
}
