// Package logging provides the structured logger every component in this
// tree writes through: one zerolog.Logger per component, tagged with a
// "component" field, plus a fixed-window limiter for the 60-second
// transient-error rate limit named in spec.md §4.F/§4.G.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	base zerolog.Logger
)

func root() zerolog.Logger {
	once.Do(func() {
		var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		base = zerolog.New(w).With().Timestamp().Logger()
	})
	return base
}

// SetLevel adjusts the global minimum level (used by cmd/usbcapd to apply
// the log level loaded by internal/config).
func SetLevel(level zerolog.Level) {
	root()
	zerolog.SetGlobalLevel(level)
}

// For returns a logger tagged with the given component name, e.g.
// logging.For("audiostreamer").
func For(component string) zerolog.Logger {
	return root().With().Str("component", component).Logger()
}

// RateLimiter suppresses repeated log calls for the same condition to at
// most once per window; callers use it to implement the 60-second
// transient-error rule without every component reimplementing the same
// atomic-timestamp dance.
type RateLimiter struct {
	window time.Duration
	mu     sync.Mutex
	last   time.Time
}

func NewRateLimiter(window time.Duration) *RateLimiter {
	return &RateLimiter{window: window}
}

// Allow reports whether the caller should log now, advancing the window
// if so.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.Sub(r.last) < r.window {
		return false
	}
	r.last = now
	return true
}
