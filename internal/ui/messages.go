package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/markcallen/keylog/internal/keylog"
)

type pollMsg struct {
	presses  []keylog.SequencedEvent
	releases []keylog.SequencedEvent
	err      error
}

type profileSavedMsg struct {
	path string
	err  error
}

// Drainer is the consumer side of a listener.
type Drainer interface {
	DrainPresses() ([]keylog.SequencedEvent, error)
	DrainReleases() ([]keylog.SequencedEvent, error)
	Stats() keylog.ListenerStats
}

// pollCmd drains both buffers after interval. It runs on a bubbletea command
// goroutine, concurrently with key delivery in Update.
func pollCmd(d Drainer, interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		presses, err := d.DrainPresses()
		if err != nil {
			return pollMsg{err: err}
		}
		releases, err := d.DrainReleases()
		return pollMsg{presses: presses, releases: releases, err: err}
	})
}
