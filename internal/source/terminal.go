package source

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/markcallen/keylog/internal/keylog"
)

// TerminalID is the registry ID of the terminal source.
const TerminalID = "terminal"

// Terminal is a key source fed by a bubbletea program. The program's model
// forwards each tea.KeyMsg through Deliver. Terminals only report key presses,
// so the release buffer stays empty.
type Terminal struct {
	mu   sync.RWMutex
	sink keylog.Sink
}

// NewTerminal creates an unstarted terminal source.
func NewTerminal() *Terminal {
	return &Terminal{}
}

func (t *Terminal) ID() string { return TerminalID }

func (t *Terminal) Start(ctx context.Context, sink keylog.Sink) error {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
	go func() {
		<-ctx.Done()
		t.detach()
	}()
	return nil
}

func (t *Terminal) Stop() error {
	t.detach()
	return nil
}

func (t *Terminal) detach() {
	t.mu.Lock()
	t.sink = nil
	t.mu.Unlock()
}

// Deliver forwards a key message. It reports false when the source is not started.
func (t *Terminal) Deliver(msg tea.KeyMsg) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.sink == nil {
		return false
	}
	t.sink(keylog.Event{
		Timestamp: time.Now().UTC(),
		Source:    TerminalID,
		Kind:      keylog.KindPress,
		Key:       KeyName(msg),
	})
	return true
}

// KeyName normalizes a key message to the identifier stored in buffers.
func KeyName(msg tea.KeyMsg) string {
	if msg.Type == tea.KeySpace {
		return "space"
	}
	return msg.String()
}
