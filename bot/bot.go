package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidArguments marks configuration values that cannot be used.
var ErrInvalidArguments = errors.New("invalid argument")

// Duration reads and writes as "90s" or "24h" in YAML and the environment.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	td, err := time.ParseDuration(s)
	if err != nil || td < 0 {
		return fmt.Errorf("duration %q: %w", s, ErrInvalidArguments)
	}
	d.Duration = td
	return nil
}

// Expired reports whether something dated t is older than ttl. Without a
// ttl nothing expires.
func Expired(t time.Time, ttl *Duration) bool {
	return expiredAt(t, ttl, time.Now())
}

func expiredAt(t time.Time, ttl *Duration, now time.Time) bool {
	if ttl == nil || ttl.Duration <= 0 {
		return false
	}
	return now.After(t.Add(ttl.Duration))
}
