package source

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/markcallen/keylog/internal/keylog"
)

func TestTerminalDeliver(t *testing.T) {
	term := NewTerminal()
	if term.Deliver(tea.KeyMsg{Type: tea.KeyEnter}) {
		t.Fatal("Deliver before Start should report false")
	}

	var rec recorder
	if err := term.Start(context.Background(), rec.sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	term.Deliver(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'h'}})
	term.Deliver(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	term.Deliver(tea.KeyMsg{Type: tea.KeyUp})

	got := rec.snapshot()
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	want := []string{"h", "space", "up"}
	for i, e := range got {
		if e.Key != want[i] {
			t.Errorf("event %d key = %q, want %q", i, e.Key, want[i])
		}
		if e.Kind != keylog.KindPress {
			t.Errorf("event %d kind = %v, want press", i, e.Kind)
		}
	}

	if err := term.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if term.Deliver(tea.KeyMsg{Type: tea.KeyEnter}) {
		t.Fatal("Deliver after Stop should report false")
	}
}

func TestFuncSource(t *testing.T) {
	var stopped bool
	f := &Func{Name: "hook", StopFn: func() error { stopped = true; return nil }}
	if f.ID() != "hook" {
		t.Fatalf("ID = %q", f.ID())
	}
	if err := f.Start(context.Background(), func(keylog.Event) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.Stop(); err != nil || !stopped {
		t.Fatalf("Stop err=%v stopped=%v", err, stopped)
	}
}
