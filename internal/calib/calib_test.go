package calib

import (
	"path/filepath"
	"testing"

	"github.com/markcallen/keylog/internal/keylog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelClamping(t *testing.T) {
	ch, err := NewChannel("H", 179)
	require.NoError(t, err)

	ch.SetLow(200)
	assert.Equal(t, 178, ch.Low, "low must stay below high")

	ch.SetHigh(10)
	assert.Equal(t, 179, ch.High, "high must stay above low")

	ch.SetLow(-5)
	assert.Equal(t, 0, ch.Low)
	ch.SetHigh(0)
	assert.Equal(t, 1, ch.High)
	ch.SetHigh(500)
	assert.Equal(t, 179, ch.High)
}

func TestChannelWithBounds(t *testing.T) {
	ch, err := NewChannel("S", 255)
	require.NoError(t, err)

	got, err := ch.WithBounds(40, 200)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Low)
	assert.Equal(t, 200, got.High)

	for _, b := range [][2]int{{-1, 10}, {10, 256}, {50, 50}, {60, 50}} {
		_, err := ch.WithBounds(b[0], b[1])
		assert.Error(t, err, "bounds %v", b)
	}

	_, err = NewChannel("V", 0)
	assert.Error(t, err)
}

func TestTrackerSetBounds(t *testing.T) {
	tr := HSV()
	require.NoError(t, tr.SetBounds("S", 40, 200))
	assert.Equal(t, [3]int{0, 40, 0}, tr.Lower())
	assert.Equal(t, [3]int{179, 200, 255}, tr.Upper())

	assert.Error(t, tr.SetBounds("S", 200, 40))
	assert.Error(t, tr.SetBounds("X", 0, 1))
	assert.Equal(t, [3]int{0, 40, 0}, tr.Lower(), "failed calls leave bounds untouched")
}

func TestTrackerChannelsIsCopy(t *testing.T) {
	tr := HSV()
	chans := tr.Channels()
	chans[0].Low = 99

	assert.Equal(t, 0, tr.Channels()[0].Low)
	assert.Equal(t, [NumChannels]int{0, 0, 0}, tr.Lower())
	assert.Equal(t, [NumChannels]int{179, 255, 255}, tr.Upper())
}

func TestNewTrackerDuplicateName(t *testing.T) {
	_, err := NewTracker([NumChannels]string{"H", "H", "V"}, [NumChannels]int{1, 1, 1})
	assert.Error(t, err)
}

func TestTrackerNudge(t *testing.T) {
	tr := HSV()

	changed, err := tr.Nudge("S", Lower, 5)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 5, tr.Lower()[1])

	changed, err = tr.Nudge("V", Upper, 1)
	require.NoError(t, err)
	assert.False(t, changed, "already at max")

	_, err = tr.Nudge("X", Lower, 1)
	assert.Error(t, err)

	tr.Reset()
	assert.Equal(t, 0, tr.Lower()[1])
}

func seq(keys ...string) []keylog.SequencedEvent {
	out := make([]keylog.SequencedEvent, len(keys))
	for i, k := range keys {
		out[i] = keylog.SequencedEvent{Seq: uint64(i + 1), Event: keylog.Event{Kind: keylog.KindPress, Key: k}}
	}
	return out
}

func TestBindingsApply(t *testing.T) {
	tr := HSV()
	b := DefaultBindings(tr)

	changed, err := b.Apply(tr, seq("q", "q", "w", "x", "A"))
	require.NoError(t, err)
	assert.Equal(t, 4, changed)
	assert.Equal(t, [NumChannels]int{2, 1, 0}, tr.Lower())
	assert.Equal(t, [NumChannels]int{178, 255, 255}, tr.Upper())

	changed, err = b.Apply(tr, seq("a", "a", "a"))
	require.NoError(t, err)
	assert.Equal(t, 2, changed, "third press hits zero")

	_, err = b.Apply(tr, seq("r"))
	require.NoError(t, err)
	assert.Equal(t, [NumChannels]int{0, 0, 0}, tr.Lower())
	assert.Equal(t, [NumChannels]int{179, 255, 255}, tr.Upper())

	releases := []keylog.SequencedEvent{{Seq: 1, Event: keylog.Event{Kind: keylog.KindRelease, Key: "q"}}}
	changed, err = b.Apply(tr, releases)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestBindingsApplyUnknownChannel(t *testing.T) {
	tr := HSV()
	b := Bindings{"z": {Channel: "L", Bound: Lower, Delta: 1}}
	_, err := b.Apply(tr, seq("z"))
	assert.ErrorContains(t, err, `key "z"`)
}

func TestProfileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles", "red.yaml")
	tr := HSV()
	_, _ = tr.Nudge("H", Lower, 10)
	_, _ = tr.Nudge("V", Upper, -55)

	require.NoError(t, tr.SaveProfile(path))
	loaded, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, tr.Channels(), loaded.Channels())

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
