package calib

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// NumChannels is the number of channels in a color space.
const NumChannels = 3

// Bound selects which end of a channel an adjustment moves.
type Bound int

const (
	Lower Bound = iota
	Upper
)

func (b Bound) String() string {
	if b == Upper {
		return "high"
	}
	return "low"
}

// Tracker holds the bounds for a three-channel color space (HSV by default).
type Tracker struct {
	mu       sync.RWMutex
	channels [NumChannels]Channel
}

// HSV returns a tracker spanning the OpenCV HSV ranges.
func HSV() *Tracker {
	t, _ := NewTracker([NumChannels]string{"H", "S", "V"}, [NumChannels]int{179, 255, 255})
	return t
}

// NewTracker creates a tracker with full-range channels.
func NewTracker(names [NumChannels]string, maxes [NumChannels]int) (*Tracker, error) {
	t := &Tracker{}
	seen := make(map[string]bool, NumChannels)
	for i := range names {
		if seen[names[i]] {
			return nil, fmt.Errorf("duplicate channel name %q", names[i])
		}
		seen[names[i]] = true
		ch, err := NewChannel(names[i], maxes[i])
		if err != nil {
			return nil, err
		}
		t.channels[i] = ch
	}
	return t, nil
}

// Channels returns a copy of every channel.
func (t *Tracker) Channels() [NumChannels]Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.channels
}

// Lower returns the lower threshold triple.
func (t *Tracker) Lower() [NumChannels]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out [NumChannels]int
	for i, ch := range t.channels {
		out[i] = ch.Low
	}
	return out
}

// Upper returns the upper threshold triple.
func (t *Tracker) Upper() [NumChannels]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out [NumChannels]int
	for i, ch := range t.channels {
		out[i] = ch.High
	}
	return out
}

// Nudge moves one bound of the named channel by delta and reports whether it changed.
func (t *Tracker) Nudge(name string, bound Bound, delta int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, err := t.index(name)
	if err != nil {
		return false, err
	}
	ch := &t.channels[i]
	before := *ch
	if bound == Upper {
		ch.SetHigh(ch.High + delta)
	} else {
		ch.SetLow(ch.Low + delta)
	}
	return *ch != before, nil
}

// SetBounds replaces both bounds of the named channel.
func (t *Tracker) SetBounds(name string, low, high int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, err := t.index(name)
	if err != nil {
		return err
	}
	ch, err := t.channels[i].WithBounds(low, high)
	if err != nil {
		return err
	}
	t.channels[i] = ch
	return nil
}

// Reset restores every channel to its full range.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.channels {
		t.channels[i].Low = 0
		t.channels[i].High = t.channels[i].Max
	}
}

func (t *Tracker) index(name string) (int, error) {
	for i, ch := range t.channels {
		if ch.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", name)
}

type profile struct {
	Channels []Channel `yaml:"channels"`
}

// SaveProfile writes the current bounds as YAML.
func (t *Tracker) SaveProfile(path string) error {
	chans := t.Channels()
	data, err := yaml.Marshal(profile{Channels: chans[:]})
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir profile dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// LoadProfile reads a YAML profile written by SaveProfile.
func LoadProfile(path string) (*Tracker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if len(p.Channels) != NumChannels {
		return nil, fmt.Errorf("profile has %d channels, want %d", len(p.Channels), NumChannels)
	}
	t := &Tracker{}
	for i, ch := range p.Channels {
		if !ch.valid() {
			return nil, fmt.Errorf("profile channel %q: bounds [%d, %d] invalid for max %d", ch.Name, ch.Low, ch.High, ch.Max)
		}
		t.channels[i] = ch
	}
	return t, nil
}
