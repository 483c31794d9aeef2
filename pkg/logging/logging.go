// Package logging provides component-tagged structured logging.
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
	mu    sync.Mutex
	base  zerolog.Logger
	ready bool
)

// Setup configures the root logger. level is one of debug, info, warn, error;
// an empty or unknown level falls back to info. When pretty is true output is
// console-formatted, otherwise JSON.
func Setup(w io.Writer, level string, pretty bool) {
	mu.Lock()
	defer mu.Unlock()

	if w == nil {
		w = os.Stderr
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}

	base = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	ready = true
}

// New returns a logger tagged with the given component name. If Setup has not
// been called, a default stderr console logger at info level is used.
func New(component string) zerolog.Logger {
	mu.Lock()
	if !ready {
		w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		base = zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger()
		ready = true
	}
	l := base
	mu.Unlock()
	return l.With().Str("component", component).Logger()
}
