package keylog

import (
	"fmt"
	"path"
)

// Filter decides which keys a listener accepts.
type Filter struct {
	Allow     []string // glob patterns; empty admits every key
	Deny      []string // glob patterns; checked before Allow
	MaxKeyLen int
}

// DefaultFilter returns a filter that admits every key up to 32 bytes.
func DefaultFilter() Filter {
	return Filter{MaxKeyLen: 32}
}

// Validate reports the first malformed glob pattern.
func (f *Filter) Validate() error {
	for _, list := range [][]string{f.Allow, f.Deny} {
		for _, pattern := range list {
			if _, err := path.Match(pattern, ""); err != nil {
				return fmt.Errorf("%w: key pattern %q: %v", ErrInvalidArgument, pattern, err)
			}
		}
	}
	return nil
}

// Admit reports whether key passes the filter.
func (f *Filter) Admit(key string) bool {
	if key == "" {
		return false
	}
	if f.MaxKeyLen > 0 && len(key) > f.MaxKeyLen {
		return false
	}
	for _, pattern := range f.Deny {
		if matched, _ := path.Match(pattern, key); matched {
			return false
		}
	}
	if len(f.Allow) == 0 {
		return true
	}
	for _, pattern := range f.Allow {
		if matched, _ := path.Match(pattern, key); matched {
			return true
		}
	}
	return false
}
