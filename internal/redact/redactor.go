package redact

import (
	"fmt"
	"regexp"
)

const replacement = "[REDACTED]"

// presets name common key classes so config files need no regex.
var presets = map[string]string{
	"digits":   `^[0-9]$`,
	"letters":  `^(?i)[a-z]$`,
	"modified": `^(ctrl|alt|shift)\+.+$`,
}

// Redactor masks key identifiers that match configured patterns.
type Redactor struct {
	patterns []*regexp.Regexp
}

// New compiles redact patterns and returns a redactor. A pattern may be a
// preset name ("digits", "letters", "modified") or a regular expression.
func New(patterns []string) (*Redactor, error) {
	r := &Redactor{
		patterns: make([]*regexp.Regexp, 0, len(patterns)),
	}
	for _, pattern := range patterns {
		expr := pattern
		if preset, ok := presets[pattern]; ok {
			expr = preset
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", pattern, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Redact returns the key with every configured pattern replaced.
func (r *Redactor) Redact(key string) string {
	if r == nil || len(r.patterns) == 0 || key == "" {
		return key
	}
	redacted := key
	for _, re := range r.patterns {
		redacted = re.ReplaceAllString(redacted, replacement)
	}
	return redacted
}

// Enabled reports whether any pattern is configured.
func (r *Redactor) Enabled() bool {
	return r != nil && len(r.patterns) > 0
}
