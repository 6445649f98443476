package keylog

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func press(key string) Event {
	return Event{Kind: KindPress, Key: key}
}

func keys(events []SequencedEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Key
	}
	return out
}

func mustBuffer(t *testing.T, capacity int, opts ...Option) *EventBuffer {
	t.Helper()
	buf, err := NewEventBuffer(capacity, opts...)
	require.NoError(t, err)
	return buf
}

func TestNewEventBufferRejectsBadCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		_, err := NewEventBuffer(c)
		if !errors.Is(err, ErrInvalidCapacity) {
			t.Errorf("NewEventBuffer(%d) err = %v, want ErrInvalidCapacity", c, err)
		}
	}
}

func TestEventBufferDrainEmpty(t *testing.T) {
	buf := mustBuffer(t, 4)

	if got := buf.Drain(); len(got) != 0 {
		t.Fatalf("Drain on empty buffer returned %d events, want 0", len(got))
	}
	if buf.Len() != 0 {
		t.Errorf("Len = %d, want 0", buf.Len())
	}
}

func TestEventBufferPushAndDrain(t *testing.T) {
	buf := mustBuffer(t, 5)

	for _, k := range []string{"a", "b", "c"} {
		_, err := buf.Push(press(k))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, buf.Len())

	events := buf.Drain()
	assert.Equal(t, []string{"a", "b", "c"}, keys(events))
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, uint64(3), events[2].Seq)
	assert.Equal(t, 0, buf.Len())
	assert.Empty(t, buf.Drain())
}

func TestEventBufferWraparound(t *testing.T) {
	for c := 1; c <= 7; c++ {
		buf := mustBuffer(t, c)
		for round := 0; round < 3; round++ {
			want := make([]string, c)
			for i := 0; i < c; i++ {
				want[i] = string(rune('a'+round)) + string(rune('0'+i))
				_, err := buf.Push(press(want[i]))
				require.NoError(t, err, "capacity %d round %d push %d", c, round, i)
			}
			require.Equal(t, c, buf.Len())
			assert.Equal(t, want, keys(buf.Drain()), "capacity %d round %d", c, round)
		}
	}
}

func TestEventBufferOverflowDropNewest(t *testing.T) {
	buf := mustBuffer(t, 3)

	for _, k := range []string{"a", "b", "c"} {
		_, err := buf.Push(press(k))
		require.NoError(t, err)
	}

	seq, err := buf.Push(press("d"))
	if !errors.Is(err, ErrBufferFull) {
		t.Fatalf("Push on full buffer err = %v, want ErrBufferFull", err)
	}
	if seq != 0 {
		t.Errorf("rejected push seq = %d, want 0", seq)
	}
	if buf.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", buf.Dropped())
	}
	if buf.LastSeq() != 3 {
		t.Errorf("LastSeq = %d, want 3", buf.LastSeq())
	}

	assert.Equal(t, []string{"a", "b", "c"}, keys(buf.Drain()))
}

func TestEventBufferOverflowDropOldest(t *testing.T) {
	buf := mustBuffer(t, 3, WithOverflowPolicy(DropOldest))

	for _, k := range []string{"a", "b", "c"} {
		_, err := buf.Push(press(k))
		require.NoError(t, err)
	}

	seq, err := buf.Push(press("d"))
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("Push on full buffer err = %v, want ErrOverflow", err)
	}
	if seq != 4 {
		t.Errorf("evicting push seq = %d, want 4", seq)
	}
	assert.Equal(t, uint64(1), buf.Dropped())
	assert.Equal(t, 3, buf.Len())

	events := buf.Drain()
	assert.Equal(t, []string{"b", "c", "d"}, keys(events))
	assert.Equal(t, uint64(2), events[0].Seq)
}

// capacity=4; push(A,B,C); drain; push(D..H) overflows on the fifth push.
func TestEventBufferScenario(t *testing.T) {
	tests := []struct {
		name   string
		policy OverflowPolicy
		errIs  error
		want   []string
	}{
		{name: "drop newest", policy: DropNewest, errIs: ErrBufferFull, want: []string{"D", "E", "F", "G"}},
		{name: "drop oldest", policy: DropOldest, errIs: ErrOverflow, want: []string{"E", "F", "G", "H"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := mustBuffer(t, 4, WithOverflowPolicy(tt.policy))

			for _, k := range []string{"A", "B", "C"} {
				_, err := buf.Push(press(k))
				require.NoError(t, err)
			}
			assert.Equal(t, []string{"A", "B", "C"}, keys(buf.Drain()))
			assert.Equal(t, 0, buf.Len())

			overflows := 0
			for i, k := range []string{"D", "E", "F", "G", "H"} {
				_, err := buf.Push(press(k))
				if err != nil {
					require.ErrorIs(t, err, tt.errIs)
					require.Equal(t, 4, i, "overflow on push %d, want the fifth", i+1)
					overflows++
				}
			}
			assert.Equal(t, 1, overflows)
			assert.Equal(t, 4, buf.Len())
			assert.Equal(t, tt.want, keys(buf.Drain()))
		})
	}
}

func TestEventBufferLenMatchesDrain(t *testing.T) {
	buf := mustBuffer(t, 4, WithOverflowPolicy(DropOldest))

	for i := 0; i < 11; i++ {
		_, _ = buf.Push(press("k"))
		if i%3 == 2 {
			pending := buf.Len()
			if got := len(buf.Drain()); got != pending {
				t.Fatalf("iteration %d: Drain returned %d events, Len said %d", i, got, pending)
			}
		}
	}
}

func TestEventBufferSubscribe(t *testing.T) {
	buf := mustBuffer(t, 4)

	ch := buf.Subscribe()
	defer buf.Unsubscribe(ch)

	_, _ = buf.Push(press("a"))
	_, _ = buf.Push(press("b"))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for pending signal")
	}
	select {
	case <-ch:
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestEventBufferUnsubscribeTwice(t *testing.T) {
	buf := mustBuffer(t, 4)
	ch := buf.Subscribe()
	buf.Unsubscribe(ch)
	buf.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
}

// One producer, one polling consumer. Run with -race.
func TestEventBufferConcurrentProducerConsumer(t *testing.T) {
	const total = 20000
	buf := mustBuffer(t, 64)

	var (
		wg       sync.WaitGroup
		rejected uint64
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			if _, err := buf.Push(press("k")); err != nil {
				if !errors.Is(err, ErrBufferFull) {
					t.Errorf("unexpected push error: %v", err)
					return
				}
				rejected++
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var (
		received uint64
		lastSeq  uint64
	)
	check := func(batch []SequencedEvent) {
		for _, e := range batch {
			if e.Seq != lastSeq+1 {
				t.Fatalf("seq %d after %d: lost or duplicated event", e.Seq, lastSeq)
			}
			lastSeq = e.Seq
			received++
		}
	}
	for {
		select {
		case <-done:
			check(buf.Drain())
			if received+rejected != total {
				t.Fatalf("received %d + rejected %d != pushed %d", received, rejected, total)
			}
			if rejected != buf.Dropped() {
				t.Fatalf("rejected %d, Dropped %d", rejected, buf.Dropped())
			}
			return
		default:
			check(buf.Drain())
		}
	}
}
