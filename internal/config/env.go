package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file into the process environment.
// Variables already set in the environment win over the file. A missing file
// is not an error.
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open dotenv %q: %w", path, err)
	}
	defer f.Close()

	vars, err := parseDotEnv(f)
	if err != nil {
		return fmt.Errorf("dotenv %q: %w", path, err)
	}
	for _, v := range vars {
		if _, set := os.LookupEnv(v.name); set {
			continue
		}
		if err := os.Setenv(v.name, v.value); err != nil {
			return fmt.Errorf("dotenv %q:%d: set %s: %w", path, v.line, v.name, err)
		}
	}
	return nil
}

type envVar struct {
	name  string
	value string
	line  int
}

// parseDotEnv accepts an optional "export " prefix, double-quoted values with
// Go escapes, literal single-quoted values, and trailing " #" comments on
// unquoted values.
func parseDotEnv(r io.Reader) ([]envVar, error) {
	var vars []envVar
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		name, raw, ok := strings.Cut(strings.TrimPrefix(text, "export "), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("line %d: expected KEY=VALUE", line)
		}
		value, err := dotEnvValue(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, name, err)
		}
		vars = append(vars, envVar{name: name, value: value, line: line})
	}
	return vars, scanner.Err()
}

func dotEnvValue(raw string) (string, error) {
	switch {
	case strings.HasPrefix(raw, `"`):
		return strconv.Unquote(raw)
	case strings.HasPrefix(raw, "'"):
		if len(raw) < 2 || !strings.HasSuffix(raw, "'") {
			return "", errors.New("unterminated single quote")
		}
		return raw[1 : len(raw)-1], nil
	}
	if i := strings.Index(raw, " #"); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	return raw, nil
}

// ApplyEnv overrides config fields from KEYLOG_* environment variables and
// re-validates the result.
func ApplyEnv(cfg *Config) error {
	if v, ok := lookup("KEYLOG_SOURCE"); ok {
		cfg.Listener.Source = v
	}
	if v, ok := lookup("KEYLOG_CAPACITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KEYLOG_CAPACITY %q: %w", v, err)
		}
		cfg.Listener.Capacity = n
	}
	if v, ok := lookup("KEYLOG_OVERFLOW"); ok {
		cfg.Listener.Overflow = v
	}
	if v, ok := lookup("KEYLOG_POLL_INTERVAL"); ok {
		cfg.Listener.PollInterval = v
	}
	if v, ok := lookup("KEYLOG_SCRIPT"); ok {
		cfg.Script.Path = v
	}
	if v, ok := lookup("KEYLOG_STORE_PATH"); ok {
		cfg.Store.Path = v
	}
	if v, ok := lookup("KEYLOG_LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	return cfg.Validate()
}

func lookup(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}
