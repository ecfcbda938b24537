package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations used when the corresponding setting is empty or zero.
const (
	DefaultSplitInterval  = 15 * time.Second
	DefaultPayDelay       = 500 * time.Millisecond
	DefaultReconcileDelay = 120 * time.Second
	DefaultPostInterval   = 30 * time.Second
	DefaultPostWindow     = 15 * time.Minute
	DefaultPaymentTimeout = 15 * time.Second
	DefaultConnectTimeout = 30 * time.Second
	DefaultBusyTimeout    = time.Second
)

// ParseDurationField parses a Go duration setting. Empty means zero;
// negative values are rejected. path names the setting in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
