// Package timespec parses human-written duration strings used throughout
// the controller's configuration surface.
package timespec

import (
	"fmt"
	"time"
)

// ParseDuration parses a Go duration string ("30s", "2m", "1h30m") and
// rejects non-positive durations, which never make sense for a poll
// interval, cooldown, or grace period.
func ParseDuration(spec string) (time.Duration, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty duration")
	}

	d, err := time.ParseDuration(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", spec, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", spec)
	}

	return d, nil
}

// ParseDurationDefault is ParseDuration with a fallback for an empty spec.
func ParseDurationDefault(spec string, def time.Duration) (time.Duration, error) {
	if spec == "" {
		return def, nil
	}
	return ParseDuration(spec)
}
