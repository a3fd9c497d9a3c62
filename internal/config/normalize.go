package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRun()
	c.normalizeLogging()
	return c.normalizeJournal()
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("THELI_HOME"); ok && strings.TrimSpace(value) != "" {
		c.Paths.PipeHome = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.PipeHome) == "" {
		c.Paths.PipeHome = defaultPipeHome
	}
	var err error
	if c.Paths.PipeHome, err = expandPath(c.Paths.PipeHome); err != nil {
		return fmt.Errorf("paths.pipe_home: %w", err)
	}
	home := c.Paths.PipeHome

	if err := c.expandOrDefault(&c.Paths.StateDir, filepath.Join(home, "py2theli"), "paths.state_dir"); err != nil {
		return err
	}
	if err := c.expandOrDefault(&c.Paths.ProgsINI, filepath.Join(home, "scripts", "progs.ini"), "paths.progs_ini"); err != nil {
		return err
	}

	userHome, _ := os.UserHomeDir()
	progs, err := LoadProgs(c.Paths.ProgsINI, userHome)
	switch {
	case err == nil:
		c.Progs = progs
	case errors.Is(err, fs.ErrNotExist):
		c.Progs = nil
	default:
		return fmt.Errorf("paths.progs_ini: %w", err)
	}

	if value, ok := os.LookupEnv("THELI_SCRIPTS"); ok && strings.TrimSpace(value) != "" && c.Paths.ScriptsDir == "" {
		c.Paths.ScriptsDir = strings.TrimSpace(value)
	}
	if err := c.expandOrDefault(&c.Paths.ScriptsDir, c.progsDir("SCRIPTS", filepath.Join(home, "scripts")), "paths.scripts_dir"); err != nil {
		return err
	}
	if err := c.expandOrDefault(&c.Paths.BinDir, c.progsDir("BIN", filepath.Join(home, "bin")), "paths.bin_dir"); err != nil {
		return err
	}
	if err := c.expandOrDefault(&c.Paths.TempDir, c.progsDir("TEMPDIR", filepath.Join(c.Paths.StateDir, "tmp")), "paths.temp_dir"); err != nil {
		return err
	}
	if err := c.expandOrDefault(&c.Paths.PipeSoft, c.progsDir("PIPESOFT", ""), "paths.pipesoft_dir"); err != nil {
		return err
	}
	guiDefault := ""
	if c.Paths.PipeSoft != "" {
		guiDefault = filepath.Join(c.Paths.PipeSoft, "gui", "theliform.ui.h")
	}
	if err := c.expandOrDefault(&c.Paths.GUISource, guiDefault, "paths.gui_source"); err != nil {
		return err
	}
	if err := c.expandOrDefault(&c.Paths.UserInstrumentsDir, filepath.Join(home, "instruments_user"), "paths.user_instruments_dir"); err != nil {
		return err
	}
	return c.expandOrDefault(&c.Paths.PresetDir, filepath.Join(c.Paths.StateDir, "presets"), "paths.preset_dir")
}

func (c *Config) expandOrDefault(field *string, fallback, name string) error {
	value := strings.TrimSpace(*field)
	if value == "" {
		value = fallback
	}
	expanded, err := expandPath(value)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*field = expanded
	return nil
}

func (c *Config) progsDir(name, fallback string) string {
	if c.Progs == nil {
		return fallback
	}
	if value, ok := c.Progs.Dir(name); ok {
		return value
	}
	return fallback
}

func (c *Config) normalizeRun() {
	c.Run.Verbosity = strings.ToLower(strings.TrimSpace(c.Run.Verbosity))
	if c.Run.Verbosity == "" {
		c.Run.Verbosity = defaultVerbosity
	}
	c.Run.LogDisplay = strings.ToLower(strings.TrimSpace(c.Run.LogDisplay))
	if c.Run.LogDisplay == "" {
		c.Run.LogDisplay = defaultLogDisplay
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeJournal() error {
	return c.expandOrDefault(&c.Journal.Path, filepath.Join(c.Paths.StateDir, "journal.db"), "journal.path")
}
