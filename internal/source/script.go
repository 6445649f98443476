package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/markcallen/keylog/internal/keylog"
	"gopkg.in/yaml.v3"
)

// ScriptID is the registry ID of the replay source.
const ScriptID = "script"

// ScriptStep is one scripted key event.
type ScriptStep struct {
	Key   string `yaml:"key"`
	Kind  string `yaml:"kind"`
	After string `yaml:"after"`
}

// ScriptFile is the YAML layout of a replay script.
type ScriptFile struct {
	Events []ScriptStep `yaml:"events"`
}

type step struct {
	kind  keylog.EventKind
	key   string
	delay time.Duration
}

// Script replays a fixed sequence of key events with per-event delays.
type Script struct {
	steps []step

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// LoadScript reads and parses a YAML replay script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript parses a YAML replay script.
func ParseScript(data []byte) (*Script, error) {
	var file ScriptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	return NewScript(file.Events)
}

// NewScript validates steps and builds a replay source.
func NewScript(steps []ScriptStep) (*Script, error) {
	s := &Script{steps: make([]step, 0, len(steps))}
	var errs []error
	for i, st := range steps {
		kind, ok := keylog.ParseEventKind(st.Kind)
		if !ok {
			errs = append(errs, fmt.Errorf("events[%d]: unknown kind %q", i, st.Kind))
		}
		if st.Key == "" {
			errs = append(errs, fmt.Errorf("events[%d]: key is required", i))
		}
		var delay time.Duration
		if st.After != "" {
			d, err := time.ParseDuration(st.After)
			if err != nil {
				errs = append(errs, fmt.Errorf("events[%d]: after: %w", i, err))
			} else if d < 0 {
				errs = append(errs, fmt.Errorf("events[%d]: after must be >= 0", i))
			}
			delay = d
		}
		s.steps = append(s.steps, step{kind: kind, key: st.Key, delay: delay})
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", keylog.ErrInvalidArgument, errors.Join(errs...))
	}
	return s, nil
}

func (s *Script) ID() string { return ScriptID }

// Len returns the number of scripted events.
func (s *Script) Len() int { return len(s.steps) }

func (s *Script) Start(ctx context.Context, sink keylog.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("script already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, sink, s.done)
	return nil
}

func (s *Script) run(ctx context.Context, sink keylog.Sink, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for _, st := range s.steps {
		if st.delay > 0 {
			timer.Reset(st.delay)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return
		}
		sink(keylog.Event{
			Timestamp: time.Now().UTC(),
			Source:    ScriptID,
			Kind:      st.kind,
			Key:       st.key,
		})
	}
}

// Done is closed once every step has been delivered or the script was stopped.
// It returns nil before Start.
func (s *Script) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Stop cancels the replay and waits for the replay goroutine to exit.
func (s *Script) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
