package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths locates the THELI installation and the state kept by theli itself.
type Paths struct {
	PipeHome           string `toml:"pipe_home"`
	StateDir           string `toml:"state_dir"`
	ProgsINI           string `toml:"progs_ini"`
	ScriptsDir         string `toml:"scripts_dir"`
	BinDir             string `toml:"bin_dir"`
	TempDir            string `toml:"temp_dir"`
	PipeSoft           string `toml:"pipesoft_dir"`
	GUISource          string `toml:"gui_source"`
	UserInstrumentsDir string `toml:"user_instruments_dir"`
	PresetDir          string `toml:"preset_dir"`
}

// Run holds defaults for reduction runs that command line flags may override.
type Run struct {
	Verbosity  string `toml:"verbosity"`
	Threads    int    `toml:"threads"`
	LogDisplay string `toml:"log_display"`
}

// Logging contains configuration for diagnostic log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	Stderr bool   `toml:"stderr"`
}

// Journal controls the SQLite record of runs, decisions and invocations.
type Journal struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config encapsulates all configuration values for theli.
//
// Configuration sections:
//   - Paths: THELI install locations and the theli state directory
//   - Run: verbosity, thread count and log display defaults
//   - Logging: diagnostic log format and level
//   - Journal: run history database
type Config struct {
	Paths   Paths   `toml:"paths"`
	Run     Run     `toml:"run"`
	Logging Logging `toml:"logging"`
	Journal Journal `toml:"journal"`

	// Progs is the parsed progs.ini, nil when the file does not exist.
	Progs *Progs `toml:"-"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/theli/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("theli.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state directories theli writes to. The THELI
// installation itself is never created.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Journal.Enabled {
		if err := os.MkdirAll(filepath.Dir(c.Journal.Path), 0o755); err != nil {
			return fmt.Errorf("create journal directory: %w", err)
		}
	}
	return nil
}

// LogsDir holds one log per script invocation.
func (c *Config) LogsDir() string {
	return filepath.Join(c.Paths.StateDir, "logs")
}

// LockPath is the system lock marker.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "theli.lock")
}

// LatestLogPath is the symlink repointed to the most recent invocation log.
func (c *Config) LatestLogPath() string {
	return filepath.Join(c.Paths.StateDir, "theli.log")
}

// DiagnosticsLogPath receives the structured slog stream.
func (c *Config) DiagnosticsLogPath() string {
	return filepath.Join(c.Paths.StateDir, "diagnostics.log")
}

// ParameterTemplate returns the optional site template for a parameter file.
func (c *Config) ParameterTemplate(name string) string {
	return filepath.Join(c.Paths.StateDir, name+".default")
}

// SystemDefaultsPath lists site-wide parameter overrides applied on reset.
func (c *Config) SystemDefaultsPath() string {
	return filepath.Join(c.Paths.StateDir, "sys.default")
}

// ParallelLauncher is the helper that fans a script out over the configured CPUs.
func (c *Config) ParallelLauncher() string {
	return "parallel_manager.sh"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
