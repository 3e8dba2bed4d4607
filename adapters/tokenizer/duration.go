package tokenizer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses lifetimes such as "45s", "15m", "24h" or "7d".
// Unknown suffixes and non-positive values are errors.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid duration %q: unknown unit %q", s, s[len(s)-1:])
	}

	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid duration %q: must be positive", s)
	}
	if n > int64(1<<63-1)/int64(unit) {
		return 0, fmt.Errorf("invalid duration %q: overflows", s)
	}

	return time.Duration(n) * unit, nil
}
