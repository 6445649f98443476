package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/markcallen/keylog/internal/keylog"
)

// MemoryRecorder keeps sessions in memory.
type MemoryRecorder struct {
	opts options

	mu       sync.RWMutex
	sessions map[string]SessionMeta
	events   map[string][]Record
	closed   bool
}

// NewMemoryRecorder creates an in-memory recorder.
func NewMemoryRecorder(opts ...Option) *MemoryRecorder {
	return &MemoryRecorder{
		opts:     buildOptions(opts),
		sessions: make(map[string]SessionMeta),
		events:   make(map[string][]Record),
	}
}

func (m *MemoryRecorder) Begin(ctx context.Context, meta SessionMeta) (SessionMeta, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return SessionMeta{}, ErrClosed
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.StartedAt.IsZero() {
		meta.StartedAt = m.opts.now().UTC()
	}
	if _, exists := m.sessions[meta.ID]; exists {
		return SessionMeta{}, fmt.Errorf("session %q already exists", meta.ID)
	}
	m.sessions[meta.ID] = meta
	return meta, nil
}

func (m *MemoryRecorder) Append(ctx context.Context, sessionID string, batch []keylog.SequencedEvent) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	recs := m.events[sessionID]
	for _, e := range batch {
		rec := m.opts.record(e)
		rec.Seq = uint64(len(recs) + 1)
		recs = append(recs, rec)
	}
	m.events[sessionID] = recs
	return nil
}

func (m *MemoryRecorder) Events(ctx context.Context, sessionID string) ([]Record, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	return append([]Record(nil), m.events[sessionID]...), nil
}

func (m *MemoryRecorder) Sessions(ctx context.Context) ([]SessionMeta, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]SessionMeta, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sortSessions(out)
	return out, nil
}

func (m *MemoryRecorder) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func sortSessions(s []SessionMeta) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].StartedAt.Equal(s[j].StartedAt) {
			return s[i].ID < s[j].ID
		}
		return s[i].StartedAt.Before(s[j].StartedAt)
	})
}
