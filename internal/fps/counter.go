package fps

import (
	"sync"
	"time"
)

// Counter measures how often a loop ticks over a sliding window.
type Counter struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	ticks  []time.Time
	total  uint64
	start  time.Time
}

// Option configures a Counter.
type Option func(*Counter)

// WithWindow sets the averaging window. The default is one second.
func WithWindow(d time.Duration) Option {
	return func(c *Counter) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Counter) {
		c.now = now
	}
}

// New creates a counter.
func New(opts ...Option) *Counter {
	c := &Counter{window: time.Second, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.start = c.now()
	return c
}

// Tick records one loop iteration.
func (c *Counter) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now()
	c.ticks = append(c.ticks, t)
	c.total++
	c.trim(t)
}

// Rate returns ticks per second over the window.
func (c *Counter) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now()
	c.trim(t)
	span := c.window
	if elapsed := t.Sub(c.start); elapsed < span {
		span = elapsed
	}
	if span <= 0 {
		return 0
	}
	return float64(len(c.ticks)) / span.Seconds()
}

// Total returns the number of ticks since New.
func (c *Counter) Total() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *Counter) trim(t time.Time) {
	cutoff := t.Add(-c.window)
	i := 0
	for i < len(c.ticks) && !c.ticks[i].After(cutoff) {
		i++
	}
	if i > 0 {
		c.ticks = append(c.ticks[:0], c.ticks[i:]...)
	}
}
