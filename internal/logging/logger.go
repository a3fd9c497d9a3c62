package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"theli/internal/config"
)

// Options describes logger construction parameters. Path wins over Writer;
// with neither set records go to stderr.
type Options struct {
	Level       string
	Format      string
	Path        string
	Writer      io.Writer
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	handler, err := newHandler(opts)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

func newHandler(opts Options) (slog.Handler, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}
	if format != "console" && format != "json" {
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	w, err := openWriter(opts)
	if err != nil {
		return nil, err
	}
	addSource := opts.Development || level <= slog.LevelDebug
	if format == "json" {
		return newJSONHandler(w, levelVar, addSource), nil
	}
	return newPrettyHandler(w, levelVar, addSource), nil
}

// NewFromConfig creates the diagnostic logger for one theli invocation. Records
// go to the diagnostics file in the state directory; when stderr logging is
// enabled, warnings and errors are mirrored to the terminal as well.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info"})
	}

	fileHandler, err := newHandler(Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Path:   cfg.DiagnosticsLogPath(),
	})
	if err != nil {
		return nil, err
	}
	if !cfg.Logging.Stderr {
		return slog.New(fileHandler), nil
	}
	stderrHandler, err := newHandler(Options{Level: "warn", Writer: os.Stderr})
	if err != nil {
		return nil, err
	}
	return slog.New(newFanoutHandler(fileHandler, stderrHandler)), nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openWriter appends to the diagnostics file; several theli invocations
// share one file over the life of an installation.
func openWriter(opts Options) (io.Writer, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		if opts.Writer != nil {
			return opts.Writer, nil
		}
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}
