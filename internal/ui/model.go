package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/markcallen/keylog/internal/calib"
	"github.com/markcallen/keylog/internal/fps"
	"github.com/markcallen/keylog/internal/keylog"
	"github.com/markcallen/keylog/internal/store"
)

const recentKeys = 16

// KeyForwarder receives key messages on the producer side.
type KeyForwarder interface {
	Deliver(msg tea.KeyMsg) bool
}

// Config wires the console to its collaborators.
type Config struct {
	Forwarder    KeyForwarder
	Drainer      Drainer
	Tracker      *calib.Tracker
	Bindings     calib.Bindings
	Recorder     store.Recorder
	SessionID    string
	ProfilePath  string
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Model is the Bubbletea model for the calibration console.
type Model struct {
	cfg     Config
	counter *fps.Counter
	logger  *slog.Logger

	recent   []string
	presses  uint64
	releases uint64
	applied  int
	status   string
	err      error
	quitting bool
}

// New creates a console model. PollInterval defaults to 50ms.
func New(cfg Config) Model {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.Bindings == nil && cfg.Tracker != nil {
		cfg.Bindings = calib.DefaultBindings(cfg.Tracker)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return Model{
		cfg:     cfg,
		counter: fps.New(),
		logger:  logger,
	}
}

func (m Model) Init() tea.Cmd {
	return pollCmd(m.cfg.Drainer, m.cfg.PollInterval)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if isQuit(msg) {
			m.quitting = true
			m.drainFinal()
			return m, tea.Quit
		}
		if isSave(msg) && m.cfg.ProfilePath != "" && m.cfg.Tracker != nil {
			tracker, path := m.cfg.Tracker, m.cfg.ProfilePath
			return m, func() tea.Msg {
				return profileSavedMsg{path: path, err: tracker.SaveProfile(path)}
			}
		}
		m.cfg.Forwarder.Deliver(msg)
		return m, nil

	case pollMsg:
		if msg.err != nil {
			m.err = msg.err
			m.quitting = true
			return m, tea.Quit
		}
		m.counter.Tick()
		m.consume(msg.presses, msg.releases)
		return m, pollCmd(m.cfg.Drainer, m.cfg.PollInterval)

	case profileSavedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Save failed: %v", msg.err)
		} else {
			m.status = fmt.Sprintf("Saved to %s", msg.path)
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) consume(presses, releases []keylog.SequencedEvent) {
	m.presses += uint64(len(presses))
	m.releases += uint64(len(releases))
	for _, e := range presses {
		m.recent = append(m.recent, e.Key)
	}
	if over := len(m.recent) - recentKeys; over > 0 {
		m.recent = m.recent[over:]
	}

	if m.cfg.Tracker != nil {
		n, err := m.cfg.Bindings.Apply(m.cfg.Tracker, presses)
		m.applied += n
		if err != nil {
			m.status = err.Error()
		}
	}

	if m.cfg.Recorder == nil || m.cfg.SessionID == "" {
		return
	}
	if len(presses)+len(releases) == 0 {
		return
	}
	batch := make([]keylog.SequencedEvent, 0, len(presses)+len(releases))
	batch = append(batch, presses...)
	batch = append(batch, releases...)
	if err := m.cfg.Recorder.Append(context.Background(), m.cfg.SessionID, batch); err != nil {
		m.logger.Error("record batch", "session", m.cfg.SessionID, "events", len(batch), "error", err)
		m.status = fmt.Sprintf("Record failed: %v", err)
	}
}

// drainFinal consumes whatever is still buffered so the last keys are
// applied and recorded before the listener stops.
func (m *Model) drainFinal() {
	presses, err := m.cfg.Drainer.DrainPresses()
	if err != nil {
		m.logger.Warn("final drain", "error", err)
		return
	}
	releases, err := m.cfg.Drainer.DrainReleases()
	if err != nil {
		m.logger.Warn("final drain", "error", err)
	}
	m.consume(presses, releases)
}

// Err returns the error that ended the poll loop, if any.
func (m Model) Err() error {
	return m.err
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("keylog") + "\n\n")

	if m.cfg.Tracker != nil {
		for _, ch := range m.cfg.Tracker.Channels() {
			fmt.Fprintf(&b, "%s %s %s  %s %s\n",
				channelStyle.Render(ch.Name),
				labelStyle.Render("low"), valueStyle.Render(fmt.Sprintf("%3d", ch.Low)),
				labelStyle.Render("high"), valueStyle.Render(fmt.Sprintf("%3d", ch.High)),
			)
		}
		b.WriteString("\n")
	}

	stats := m.cfg.Drainer.Stats()
	fmt.Fprintf(&b, "%s %s  %s %s  %s %.1f/s\n",
		labelStyle.Render("presses"), valueStyle.Render(fmt.Sprint(m.presses)),
		labelStyle.Render("releases"), valueStyle.Render(fmt.Sprint(m.releases)),
		labelStyle.Render("poll"), m.counter.Rate(),
	)
	if dropped := stats.Presses.Dropped + stats.Releases.Dropped; dropped > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("dropped %d events (buffer full)", dropped)) + "\n")
	}
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("recent"), strings.Join(m.recent, " "))
	if m.status != "" {
		b.WriteString(warnStyle.Render(m.status) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render(helpText(m.cfg.ProfilePath != "")))
	return b.String()
}
