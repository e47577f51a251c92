// Package logging provides structured logging for the mnemo engine.
//
// All components log through zerolog with a "component" field so that
// interactive-path events (cache hits, timeouts) can be told apart from
// background maintenance (consolidation, sweeps) in one stream.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	root = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
)

// Init reconfigures the root logger.
//
// level accepts zerolog level names ("debug", "info", "warn", "error");
// unknown values fall back to info. When console is true, output is rendered
// human-readable; otherwise raw JSON is written to w.
func Init(w io.Writer, level string, console bool) {
	if w == nil {
		w = os.Stderr
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	mu.Lock()
	defer mu.Unlock()
	root = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Component returns a logger tagged with the given component name.
//
// Example:
//
//	log := logging.Component("cache")
//	log.Info().Str("key", key).Msg("cache hit")
func Component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str("component", name).Logger()
}

// Root returns the current root logger.
func Root() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}
