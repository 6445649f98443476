package calib

import (
	"fmt"
	"strings"

	"github.com/markcallen/keylog/internal/keylog"
)

// Adjustment is the effect of one key on the tracker.
type Adjustment struct {
	Channel string
	Bound   Bound
	Delta   int
	Reset   bool
}

// Bindings maps key identifiers to tracker adjustments.
type Bindings map[string]Adjustment

// DefaultBindings returns the console layout: q/a, w/s, e/d move the low bound
// of channels 0..2; shift variants move the high bound; r resets.
func DefaultBindings(t *Tracker) Bindings {
	chans := t.Channels()
	b := Bindings{"r": {Reset: true}}
	rows := [NumChannels][2]string{{"q", "a"}, {"w", "s"}, {"e", "d"}}
	for i, keys := range rows {
		name := chans[i].Name
		b[keys[0]] = Adjustment{Channel: name, Bound: Lower, Delta: 1}
		b[keys[1]] = Adjustment{Channel: name, Bound: Lower, Delta: -1}
		b[strings.ToUpper(keys[0])] = Adjustment{Channel: name, Bound: Upper, Delta: 1}
		b[strings.ToUpper(keys[1])] = Adjustment{Channel: name, Bound: Upper, Delta: -1}
	}
	return b
}

// Apply feeds a drained batch of press events to the tracker and returns how
// many of them changed a bound. Unbound keys are ignored.
func (b Bindings) Apply(t *Tracker, events []keylog.SequencedEvent) (int, error) {
	changed := 0
	for _, e := range events {
		if e.Kind != keylog.KindPress {
			continue
		}
		adj, ok := b[e.Key]
		if !ok {
			continue
		}
		if adj.Reset {
			t.Reset()
			changed++
			continue
		}
		ok, err := t.Nudge(adj.Channel, adj.Bound, adj.Delta)
		if err != nil {
			return changed, fmt.Errorf("key %q: %w", e.Key, err)
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}
