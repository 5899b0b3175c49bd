// Package config parses the engine's key-value configuration file: one
// whitespace-separated key/value pair per line, '#'-prefixed comments, keys
// matched case-insensitively. This format has no ecosystem parser in the
// example pack (it is not YAML, TOML, or .env), so it is hand-rolled
// against the standard library bufio/strings scanner the way a small,
// bespoke format warrants — recorded in the design ledger as the one
// ambient-stack piece built without a third-party dependency.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Config holds the recognized settings plus any unrecognized keys, so
// callers can still read forward-compatible settings by name.
type Config struct {
	ExecuteDiag        bool
	ServerLongQueryTime float64
	raw                map[string]string
}

// Default matches the documented defaults: diagnostics off, slow-query
// tracking disabled (anything below one second disables it).
func Default() Config {
	return Config{
		ExecuteDiag:         false,
		ServerLongQueryTime: 0,
		raw:                 map[string]string{},
	}
}

// Load reads and parses a configuration file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads key-value pairs from r.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	cfg.raw = map[string]string{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return Config{}, fmt.Errorf("config: line %d: expected \"key value\", got %q", lineNo, line)
		}
		key := fields[0]
		value := strings.Join(fields[1:], " ")
		cfg.raw[strings.ToLower(key)] = value

		switch strings.ToLower(key) {
		case "execute_diag":
			cfg.ExecuteDiag = strings.EqualFold(value, "on")
		case "server_long_query_time":
			seconds, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return Config{}, fmt.Errorf("config: line %d: server_long_query_time: %w", lineNo, err)
			}
			if seconds < 1 {
				seconds = 0
			}
			cfg.ServerLongQueryTime = seconds
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("config: scan: %w", err)
	}
	return cfg, nil
}

// Get returns the raw string value for an arbitrary (possibly
// unrecognized) key, case-insensitively.
func (c Config) Get(key string) (string, bool) {
	v, ok := c.raw[strings.ToLower(key)]
	return v, ok
}

// SlowQueryTrackingEnabled reports whether server_long_query_time was set
// to at least one second.
func (c Config) SlowQueryTrackingEnabled() bool {
	return c.ServerLongQueryTime >= 1
}
