package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"theli/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a fresh temp directory: a fake THELI
// installation under pipe/ and theli state under state/. The directories
// exist when NewConfig returns.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	home := filepath.Join(base, "pipe")
	state := filepath.Join(base, "state")
	cfgVal.Paths = config.Paths{
		PipeHome:           home,
		StateDir:           state,
		ProgsINI:           filepath.Join(home, "scripts", "progs.ini"),
		ScriptsDir:         filepath.Join(home, "scripts"),
		BinDir:             filepath.Join(home, "bin"),
		TempDir:            filepath.Join(state, "tmp"),
		UserInstrumentsDir: filepath.Join(home, "instruments_user"),
		PresetDir:          filepath.Join(state, "presets"),
	}
	cfgVal.Journal.Path = filepath.Join(state, "journal.db")

	for _, dir := range []string{cfgVal.Paths.ScriptsDir, cfgVal.Paths.BinDir, cfgVal.Paths.TempDir, cfgVal.Paths.PresetDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithoutJournal disables the run journal.
func WithoutJournal() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Journal.Enabled = false
	}
}

// WithThreads overrides the configured thread count.
func WithThreads(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Run.Threads = n
	}
}

// WithStubbedScripts writes stub shell scripts into the scripts directory.
// body is the script text after the shebang; empty means "exit 0".
func WithStubbedScripts(body string, names ...string) ConfigOption {
	return func(b *configBuilder) {
		writeStubs(b.t, b.cfg.Paths.ScriptsDir, body, names)
	}
}

// WithStubbedBinaries writes stub executables for the provided names into the
// bin directory and prepends it to PATH. If names is empty, the required
// THELI binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"sex", "scamp", "swarp", "ldactoasc", "get_posangle"}
		}
		writeStubs(b.t, b.cfg.Paths.BinDir, "", names)
		b.t.Setenv("PATH", b.cfg.Paths.BinDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

func writeStubs(t testing.TB, dir, body string, names []string) {
	t.Helper()
	if body == "" {
		body = "exit 0"
	}
	script := []byte("#!/bin/sh\n" + body + "\n")
	for _, name := range names {
		target := filepath.Join(dir, name)
		if err := os.WriteFile(target, script, 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
