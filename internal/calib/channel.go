package calib

import "fmt"

// Channel holds the calibrated low/high bounds of one color channel.
// Low is always strictly below High, and both stay within [0, Max].
type Channel struct {
	Name string `yaml:"name"`
	Max  int    `yaml:"max"`
	Low  int    `yaml:"low"`
	High int    `yaml:"high"`
}

// NewChannel creates a channel spanning the full [0, max] range.
func NewChannel(name string, maxValue int) (Channel, error) {
	if maxValue < 1 {
		return Channel{}, fmt.Errorf("channel %q: max must be >= 1, got %d", name, maxValue)
	}
	return Channel{Name: name, Max: maxValue, Low: 0, High: maxValue}, nil
}

// WithBounds returns a copy of c using the given bounds.
func (c Channel) WithBounds(low, high int) (Channel, error) {
	if low < 0 || high > c.Max || low >= high {
		return c, fmt.Errorf("channel %q: bounds [%d, %d] outside 0 <= low < high <= %d", c.Name, low, high, c.Max)
	}
	c.Low, c.High = low, high
	return c, nil
}

// SetLow moves the lower bound, keeping it at least one below High.
func (c *Channel) SetLow(pos int) {
	c.Low = max(0, min(c.High-1, pos))
}

// SetHigh moves the upper bound, keeping it at least one above Low.
func (c *Channel) SetHigh(pos int) {
	c.High = min(c.Max, max(pos, c.Low+1))
}

func (c Channel) valid() bool {
	return c.Max >= 1 && c.Low >= 0 && c.High <= c.Max && c.Low < c.High
}
