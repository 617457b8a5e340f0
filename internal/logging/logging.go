// Package logging builds the zerolog logger shared by every appopsctl
// component. Command output meant for the user goes to stdout with fmt; this
// logger carries diagnostics to stderr or the daemon log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Options selects the level, encoding and destination of log output.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	File   string // append to this file instead of stderr
}

var (
	mu   sync.RWMutex
	base = zerolog.Nop()
)

// ParseLevel maps a config level name to a zerolog level. Unknown or empty
// names fall back to warn so routine commands stay quiet.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	}
	return zerolog.WarnLevel
}

// New creates a logger from opts. The returned closer releases the log file,
// if one was opened; it is never nil.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closer = f
	}

	switch strings.ToLower(opts.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			NoColor:    !isTerminal(out),
		}
	case "json":
	default:
		closer.Close()
		return zerolog.Nop(), io.NopCloser(nil), fmt.Errorf("unknown log format %q (must be console or json)", opts.Format)
	}

	l := zerolog.New(out).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Logger()
	return l, closer, nil
}

// SetDefault replaces the process-wide logger handed out by For.
func SetDefault(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
}

// For returns a sub-logger tagged with the component name.
func For(module string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("module", module).Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
