package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/markcallen/keylog/internal/keylog"
	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

var (
	sessionsBucket = []byte("sessions")
	eventsBucket   = []byte("events")
)

// BoltRecorder persists sessions in a bbolt database file.
//
// Layout: sessions/<id> holds the JSON SessionMeta; events/<id>/<seq> holds
// one JSON Record per event, keyed by big-endian sequence.
type BoltRecorder struct {
	db   *bolt.DB
	opts options
}

// OpenBolt opens (or creates) the database at path.
func OpenBolt(path string, opts ...Option) (*BoltRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir store dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{sessionsBucket, eventsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}
	return &BoltRecorder{db: db, opts: buildOptions(opts)}, nil
}

func (b *BoltRecorder) Begin(ctx context.Context, meta SessionMeta) (SessionMeta, error) {
	if err := ctx.Err(); err != nil {
		return SessionMeta{}, err
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.StartedAt.IsZero() {
		meta.StartedAt = b.opts.now().UTC()
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return SessionMeta{}, fmt.Errorf("marshal session: %w", err)
	}
	err = b.update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(sessionsBucket)
		if sessions.Get([]byte(meta.ID)) != nil {
			return fmt.Errorf("session %q already exists", meta.ID)
		}
		if _, err := tx.Bucket(eventsBucket).CreateBucket([]byte(meta.ID)); err != nil {
			return fmt.Errorf("create events bucket: %w", err)
		}
		return sessions.Put([]byte(meta.ID), encoded)
	})
	if err != nil {
		return SessionMeta{}, err
	}
	return meta, nil
}

func (b *BoltRecorder) Append(ctx context.Context, sessionID string, batch []keylog.SequencedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return b.view(func(tx *bolt.Tx) error {
			if tx.Bucket(eventsBucket).Bucket([]byte(sessionID)) == nil {
				return fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
			}
			return nil
		})
	}
	return b.update(func(tx *bolt.Tx) error {
		events := tx.Bucket(eventsBucket).Bucket([]byte(sessionID))
		if events == nil {
			return fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
		}
		for _, e := range batch {
			seq, err := events.NextSequence()
			if err != nil {
				return err
			}
			rec := b.opts.record(e)
			rec.Seq = seq
			encoded, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			if err := events.Put(seqKey(seq), encoded); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltRecorder) Events(ctx context.Context, sessionID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Record
	err := b.view(func(tx *bolt.Tx) error {
		events := tx.Bucket(eventsBucket).Bucket([]byte(sessionID))
		if events == nil {
			return fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
		}
		return events.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("parse record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BoltRecorder) Sessions(ctx context.Context) ([]SessionMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []SessionMeta
	err := b.view(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(k, v []byte) error {
			var meta SessionMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return fmt.Errorf("parse session %q: %w", k, err)
			}
			out = append(out, meta)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortSessions(out)
	return out, nil
}

func (b *BoltRecorder) Close() error {
	return b.db.Close()
}

// update and view report ErrClosed once Close has run, matching MemoryRecorder.
func (b *BoltRecorder) update(fn func(*bolt.Tx) error) error {
	return closedErr(b.db.Update(fn))
}

func (b *BoltRecorder) view(fn func(*bolt.Tx) error) error {
	return closedErr(b.db.View(fn))
}

func closedErr(err error) error {
	if errors.Is(err, berrors.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
