package keylog

import (
	"fmt"
	"sync"
)

// OverflowPolicy decides what Push does when the buffer is full.
type OverflowPolicy int

const (
	// DropNewest rejects the incoming event and leaves unread events untouched.
	DropNewest OverflowPolicy = iota
	// DropOldest evicts the oldest unread event to make room for the incoming one.
	DropOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop-newest"
	case DropOldest:
		return "drop-oldest"
	}
	return fmt.Sprintf("OverflowPolicy(%d)", int(p))
}

// ParseOverflowPolicy maps a config string to a policy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "drop-newest", "reject":
		return DropNewest, nil
	case "drop-oldest":
		return DropOldest, nil
	}
	return 0, fmt.Errorf("%w: unknown overflow policy %q", ErrInvalidArgument, s)
}

// SequencedEvent is an Event with a monotonic sequence number assigned by the buffer.
type SequencedEvent struct {
	Seq uint64
	Event
}

// Option configures an EventBuffer.
type Option func(*EventBuffer)

// WithOverflowPolicy sets the overflow policy. The default is DropNewest.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(b *EventBuffer) {
		b.policy = p
	}
}

// EventBuffer is a fixed-capacity ring buffer filled by an asynchronous producer
// and emptied in batches by a polling consumer.
//
// Push never blocks: when the buffer is full it applies the overflow policy
// and reports it through the returned error.
type EventBuffer struct {
	mu       sync.Mutex
	slots    []SequencedEvent
	capacity int
	policy   OverflowPolicy
	write    int // next slot to write
	read     int // oldest unread slot
	count    int // unread events
	nextSeq  uint64
	dropped  uint64

	subMu sync.RWMutex
	subs  map[<-chan struct{}]chan struct{}
}

// NewEventBuffer creates a ring buffer with the given capacity.
func NewEventBuffer(capacity int, opts ...Option) (*EventBuffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	b := &EventBuffer{
		slots:    make([]SequencedEvent, capacity),
		capacity: capacity,
		nextSeq:  1,
		subs:     make(map[<-chan struct{}]chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Push stores e at the write index and returns its sequence number.
//
// On overflow with DropNewest, e is discarded and ErrBufferFull is returned
// with a zero sequence. With DropOldest, the oldest unread event is evicted,
// e is stored, and ErrOverflow is returned alongside e's sequence.
func (b *EventBuffer) Push(e Event) (uint64, error) {
	b.mu.Lock()

	var overflowErr error
	if b.count == b.capacity {
		b.dropped++
		if b.policy == DropNewest {
			b.mu.Unlock()
			return 0, ErrBufferFull
		}
		// Evict oldest
		b.slots[b.read] = SequencedEvent{}
		b.read = (b.read + 1) % b.capacity
		b.count--
		overflowErr = ErrOverflow
	}

	seq := b.nextSeq
	b.nextSeq++
	b.slots[b.write] = SequencedEvent{Seq: seq, Event: e}
	b.write = (b.write + 1) % b.capacity
	b.count++

	b.mu.Unlock()

	b.notify()
	return seq, overflowErr
}

// Drain returns every unread event, oldest first, and marks them consumed.
// It returns nil when nothing is pending.
func (b *EventBuffer) Drain() []SequencedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	out := make([]SequencedEvent, b.count)
	for i := range out {
		idx := (b.read + i) % b.capacity
		out[i] = b.slots[idx]
		b.slots[idx] = SequencedEvent{}
	}
	b.read = b.write
	b.count = 0
	return out
}

// Subscribe returns a channel that receives a signal whenever events become
// pending. Signals coalesce: at most one is queued per subscriber.
func (b *EventBuffer) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	b.subMu.Lock()
	b.subs[ch] = ch
	b.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscription channel and closes it.
func (b *EventBuffer) Unsubscribe(ch <-chan struct{}) {
	b.subMu.Lock()
	send, ok := b.subs[ch]
	if !ok {
		b.subMu.Unlock()
		return
	}
	delete(b.subs, ch)
	b.subMu.Unlock()
	close(send)
}

func (b *EventBuffer) notify() {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
			// Already signalled
		}
	}
}

// Cap returns the fixed capacity.
func (b *EventBuffer) Cap() int {
	return b.capacity
}

// Len returns the number of unread events, which is what Drain would return.
func (b *EventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns how many overflows have occurred.
func (b *EventBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// LastSeq returns the sequence number of the most recently accepted event.
func (b *EventBuffer) LastSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextSeq - 1
}

// Policy returns the configured overflow policy.
func (b *EventBuffer) Policy() OverflowPolicy {
	return b.policy
}
