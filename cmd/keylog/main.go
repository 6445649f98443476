package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/markcallen/keylog/internal/calib"
	"github.com/markcallen/keylog/internal/config"
	"github.com/markcallen/keylog/internal/keylog"
	"github.com/markcallen/keylog/internal/redact"
	"github.com/markcallen/keylog/internal/source"
	"github.com/markcallen/keylog/internal/store"
	"github.com/markcallen/keylog/internal/ui"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults apply when empty)")
	envPath := flag.String("env", ".env", "Path to dotenv file")
	replay := flag.String("replay", "", "Replay a YAML key script headlessly instead of reading the terminal")
	logPath := flag.String("log", "keylog.log", "Log file used while the console owns the terminal")
	listSessions := flag.Bool("sessions", false, "List recorded sessions and exit")
	showSession := flag.String("show", "", "Print the events of a recorded session and exit")
	flag.Parse()

	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := loadConfig(*configPath, *envPath)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *replay != "" {
		cfg.Listener.Source = source.ScriptID
		cfg.Script.Path = *replay
	}

	redactor, err := redact.New(cfg.Logging.RedactPatterns)
	if err != nil {
		bootLogger.Error("configure redaction", "error", err)
		os.Exit(1)
	}

	recorder, err := openRecorder(cfg, redactor)
	if err != nil {
		bootLogger.Error("open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer recorder.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *listSessions:
		err = printSessions(ctx, recorder)
	case *showSession != "":
		err = printEvents(ctx, recorder, *showSession)
	default:
		err = run(ctx, cfg, recorder, *logPath)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		bootLogger.Error("keylog failed", "error", err)
		recorder.Close()
		os.Exit(1)
	}
}

func loadConfig(path, envPath string) (*config.Config, error) {
	if err := config.LoadDotEnv(envPath); err != nil {
		return nil, err
	}
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openRecorder(cfg *config.Config, redactor *redact.Redactor) (store.Recorder, error) {
	opts := []store.Option{store.WithRedactor(redactor)}
	if cfg.Store.Driver == "memory" {
		return store.NewMemoryRecorder(opts...), nil
	}
	return store.OpenBolt(cfg.Store.Path, opts...)
}

func newTracker(cfg *config.Config) (*calib.Tracker, error) {
	if cfg.Calibration.Profile != "" {
		if _, err := os.Stat(cfg.Calibration.Profile); err == nil {
			return calib.LoadProfile(cfg.Calibration.Profile)
		}
	}
	var (
		names [calib.NumChannels]string
		maxes [calib.NumChannels]int
	)
	for i, ch := range cfg.Calibration.Channels {
		names[i], maxes[i] = ch.Name, ch.Max
	}
	tracker, err := calib.NewTracker(names, maxes)
	if err != nil {
		return nil, err
	}
	for _, ch := range cfg.Calibration.Channels {
		low, high := ch.Bounds()
		if err := tracker.SetBounds(ch.Name, low, high); err != nil {
			return nil, err
		}
	}
	return tracker, nil
}

// newRegistry registers every source kind. Only the one selected by
// listener.source is built, so the script file is read only when replaying.
func newRegistry(cfg *config.Config) (*keylog.Registry, *sources) {
	built := &sources{}
	registry := keylog.NewRegistry()
	_ = registry.Register(source.TerminalID, func() (keylog.Source, error) {
		built.terminal = source.NewTerminal()
		return built.terminal, nil
	})
	_ = registry.Register(source.ScriptID, func() (keylog.Source, error) {
		script, err := source.LoadScript(cfg.Script.Path)
		if err != nil {
			return nil, err
		}
		built.script = script
		return script, nil
	})
	return registry, built
}

// sources holds the concrete source a registry factory built.
type sources struct {
	terminal *source.Terminal
	script   *source.Script
}

func run(ctx context.Context, cfg *config.Config, recorder store.Recorder, logPath string) error {
	tracker, err := newTracker(cfg)
	if err != nil {
		return fmt.Errorf("calibration: %w", err)
	}

	registry, built := newRegistry(cfg)
	src, err := registry.Open(cfg.Listener.Source)
	if err != nil {
		return err
	}

	logger := cfg.Logging.NewLogger(os.Stderr)
	if src.ID() == source.TerminalID {
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
		logger = cfg.Logging.NewLogger(logFile)
	}

	listener, err := keylog.NewListener(src, keylog.ListenerConfig{
		Capacity: cfg.Listener.Capacity,
		Overflow: cfg.Overflow(),
		Filter:   cfg.Filter(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	meta, err := recorder.Begin(ctx, store.SessionMeta{
		Source:   src.ID(),
		Capacity: cfg.Listener.Capacity,
		Overflow: cfg.Overflow().String(),
	})
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	logger.Info("session started",
		"session", meta.ID,
		"source", src.ID(),
		"capacity", cfg.Listener.Capacity,
		"overflow", cfg.Overflow().String(),
	)

	err = listener.Run(ctx, func(ctx context.Context) error {
		if built.script != nil {
			return replayLoop(ctx, cfg, listener, built.script.Done(), tracker, recorder, meta.ID, logger)
		}
		model := ui.New(ui.Config{
			Forwarder:    built.terminal,
			Drainer:      listener,
			Tracker:      tracker,
			Recorder:     recorder,
			SessionID:    meta.ID,
			ProfilePath:  cfg.Calibration.Profile,
			PollInterval: cfg.PollInterval(),
			Logger:       logger,
		})
		final, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		return final.(ui.Model).Err()
	})

	stats := listener.Stats()
	logger.Info("session finished",
		"session", meta.ID,
		"presses", stats.Presses.Accepted,
		"releases", stats.Releases.Accepted,
		"dropped", stats.Presses.Dropped+stats.Releases.Dropped,
		"filtered", stats.Filtered,
		"lower", tracker.Lower(),
		"upper", tracker.Upper(),
	)
	return err
}

// replayLoop drains both buffers whenever the listener signals pending
// events, and once more when the script finishes or ctx is cancelled.
func replayLoop(ctx context.Context, cfg *config.Config, l *keylog.Listener, done <-chan struct{},
	tracker *calib.Tracker, recorder store.Recorder, sessionID string, logger *slog.Logger) error {
	bindings := calib.DefaultBindings(tracker)
	wake, unsubscribe := l.Notify()
	defer unsubscribe()

	poll := func(ctx context.Context) error {
		presses, err := l.DrainPresses()
		if err != nil {
			return err
		}
		releases, err := l.DrainReleases()
		if err != nil {
			return err
		}
		if len(presses)+len(releases) == 0 {
			return nil
		}
		if _, err := bindings.Apply(tracker, presses); err != nil {
			logger.Warn("apply bindings", "error", err)
		}
		logger.Debug("drained batch", "presses", len(presses), "releases", len(releases))
		return recorder.Append(ctx, sessionID, append(presses, releases...))
	}

	for {
		select {
		case <-ctx.Done():
			// Record what was buffered before the cancel.
			return errors.Join(ctx.Err(), poll(context.WithoutCancel(ctx)))
		case <-done:
			err := poll(ctx)
			if err == nil && cfg.Calibration.Profile != "" {
				err = tracker.SaveProfile(cfg.Calibration.Profile)
			}
			return err
		case <-wake:
			if err := poll(ctx); err != nil {
				return err
			}
		}
	}
}

func printSessions(ctx context.Context, recorder store.Recorder) error {
	sessions, err := recorder.Sessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		fmt.Printf("%s\t%s\t%s\tcap=%d\t%s\n", s.ID, s.StartedAt.Format(time.RFC3339), s.Source, s.Capacity, s.Overflow)
	}
	return nil
}

func printEvents(ctx context.Context, recorder store.Recorder, sessionID string) error {
	events, err := recorder.Events(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Printf("%d\t%s\t%s\t%s\n", e.Seq, e.Timestamp.Format(time.RFC3339Nano), e.Kind, e.Key)
	}
	return nil
}
