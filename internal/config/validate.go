package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRun(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.PipeHome == "" {
		return errors.New("paths.pipe_home must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.ScriptsDir == "" {
		return errors.New("paths.scripts_dir must be set (or provide scripts/progs.ini)")
	}
	return nil
}

func (c *Config) validateRun() error {
	if !slices.Contains(verbosityLevels, c.Run.Verbosity) {
		return fmt.Errorf("run.verbosity must be one of %s, got %q", strings.Join(verbosityLevels, ", "), c.Run.Verbosity)
	}
	if !slices.Contains(logDisplays, c.Run.LogDisplay) {
		return fmt.Errorf("run.log_display must be one of %s, got %q", strings.Join(logDisplays, ", "), c.Run.LogDisplay)
	}
	if c.Run.Threads < 0 {
		return errors.New("run.threads must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
}

// VerbosityLevel converts a verbosity name into the numeric level scripts use
// (quiet=0, normal=1, full=2). Unknown names map to normal.
func VerbosityLevel(name string) int {
	idx := slices.Index(verbosityLevels, strings.ToLower(strings.TrimSpace(name)))
	if idx < 0 {
		return 1
	}
	return idx
}

// ValidVerbosity reports whether name is an accepted verbosity.
func ValidVerbosity(name string) bool {
	return slices.Contains(verbosityLevels, strings.ToLower(strings.TrimSpace(name)))
}

// ValidLogDisplay reports whether name is an accepted log display program.
func ValidLogDisplay(name string) bool {
	return slices.Contains(logDisplays, strings.ToLower(strings.TrimSpace(name)))
}
