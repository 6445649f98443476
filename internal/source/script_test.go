package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/markcallen/keylog/internal/keylog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []keylog.Event
}

func (r *recorder) sink(e keylog.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []keylog.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]keylog.Event(nil), r.events...)
}

func TestLoadScriptAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yaml")
	content := `
events:
  - key: h
  - key: h
    kind: release
    after: 5ms
  - key: up
    kind: press
    after: 1ms
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Nil(t, s.Done())

	var rec recorder
	require.NoError(t, s.Start(context.Background(), rec.sink))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for script to finish")
	}
	require.NoError(t, s.Stop())

	got := rec.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, keylog.KindPress, got[0].Kind)
	assert.Equal(t, keylog.KindRelease, got[1].Kind)
	assert.Equal(t, "up", got[2].Key)
	assert.Equal(t, ScriptID, got[2].Source)
}

func TestParseScriptErrors(t *testing.T) {
	_, err := ParseScript([]byte(`
events:
  - key: ""
  - key: a
    kind: hold
  - key: b
    after: -1s
  - key: c
    after: soon
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, keylog.ErrInvalidArgument))
	for _, want := range []string{"events[0]", "events[1]", "events[2]", "events[3]"} {
		assert.Contains(t, err.Error(), want)
	}

	_, err = ParseScript([]byte("events: [unterminated"))
	assert.Error(t, err)
}

func TestScriptStopInterruptsReplay(t *testing.T) {
	s, err := NewScript([]ScriptStep{
		{Key: "a"},
		{Key: "b", After: "1h"},
	})
	require.NoError(t, err)

	var rec recorder
	require.NoError(t, s.Start(context.Background(), rec.sink))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		_ = s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not interrupt the pending delay")
	}
	assert.Len(t, rec.snapshot(), 1)
	assert.Error(t, s.Start(context.Background(), rec.sink))
}

func TestScriptWithListener(t *testing.T) {
	s, err := NewScript([]ScriptStep{
		{Key: "a"}, {Key: "a", Kind: "release"}, {Key: "b"}, {Key: "c"},
	})
	require.NoError(t, err)

	l, err := keylog.NewListener(s, keylog.ListenerConfig{Capacity: 2})
	require.NoError(t, err)

	err = l.Run(context.Background(), func(ctx context.Context) error {
		<-s.Done()
		presses, err := l.DrainPresses()
		if err != nil {
			return err
		}
		assert.Len(t, presses, 2)
		assert.Equal(t, "a", presses[0].Key)
		assert.Equal(t, uint64(1), l.Stats().Presses.Dropped)
		return nil
	})
	require.NoError(t, err)
}
