package store

import (
	"context"
	"errors"
	"time"

	"github.com/markcallen/keylog/internal/keylog"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrClosed          = errors.New("recorder closed")
)

// SessionMeta describes one listening session.
type SessionMeta struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Capacity  int       `json:"capacity"`
	Overflow  string    `json:"overflow"`
	StartedAt time.Time `json:"started_at"`
}

// Record is one persisted key event.
type Record struct {
	Seq       uint64    `json:"seq"`
	BufferSeq uint64    `json:"buffer_seq"`
	Kind      string    `json:"kind"`
	Key       string    `json:"key"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"ts"`
}

// Recorder persists drained batches grouped by session. After Close every
// method returns ErrClosed.
type Recorder interface {
	Begin(ctx context.Context, meta SessionMeta) (SessionMeta, error)
	Append(ctx context.Context, sessionID string, batch []keylog.SequencedEvent) error
	Events(ctx context.Context, sessionID string) ([]Record, error)
	Sessions(ctx context.Context) ([]SessionMeta, error)
	Close() error
}

// Redactor masks key identifiers before they are stored.
type Redactor interface {
	Redact(text string) string
}

// Option configures a recorder.
type Option func(*options)

type options struct {
	redactor Redactor
	now      func() time.Time
}

// WithRedactor masks keys with r before persisting them.
func WithRedactor(r Redactor) Option {
	return func(o *options) {
		o.redactor = r
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) record(e keylog.SequencedEvent) Record {
	key := e.Key
	if o.redactor != nil {
		key = o.redactor.Redact(key)
	}
	return Record{
		BufferSeq: e.Seq,
		Kind:      e.Kind.String(),
		Key:       key,
		Source:    e.Source,
		Timestamp: e.Timestamp,
	}
}
