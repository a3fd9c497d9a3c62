package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"theli/internal/config"
	"theli/internal/testsupport"
)

const testInstrument = "TEST@TEL"

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	mainDir    string
}

// setupCLITestEnv writes a config for a fake THELI installation with one
// instrument and returns it together with an empty main folder.
func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	t.Setenv("THELI_HOME", "")
	t.Setenv("THELI_SCRIPTS", "")
	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	writeFile(t, filepath.Join(cfg.Paths.ScriptsDir, "process_split_"+testInstrument+".sh"), "#!/bin/sh\n")
	writeFile(t, filepath.Join(cfg.Paths.ScriptsDir, "instruments_professional", testInstrument+".ini"),
		"NCHIPS=1\nSIZEX=([1]=2048)\nSIZEY=([1]=4096)\nTYPE=OPT\nPIXSCALE=0.238\n")

	configPath := filepath.Join(base, "theli.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	writeFile(t, configPath, string(data))

	mainDir := filepath.Join(base, "project")
	if err := os.MkdirAll(mainDir, 0o755); err != nil {
		t.Fatalf("mkdir main: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath, mainDir: mainDir}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, args, e.configPath)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
