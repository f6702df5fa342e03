// Package backoff computes retry delays for outbound calls.
package backoff

import "time"

const (
	defaultInitial = 100 * time.Millisecond
	defaultMax     = 5 * time.Second
)

// Config bounds the delay curve. Zero fields fall back to the defaults.
type Config struct {
	Initial time.Duration
	Max     time.Duration
}

// Exponential returns the delay before the given attempt. The first
// attempt waits Initial and every later attempt doubles the previous
// delay, capped at Max. Attempts below 1 are treated as the first.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial, max := defaultInitial, defaultMax
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			max = cfg.Max
		}
	}

	d := initial
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}
