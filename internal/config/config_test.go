package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"theli/internal/config"
)

func TestLoadDefaultsUnderPipeHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("THELI_HOME", home)
	t.Setenv("THELI_SCRIPTS", "")

	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if cfg.Paths.PipeHome != home {
		t.Fatalf("pipe home = %q, want %q", cfg.Paths.PipeHome, home)
	}
	if want := filepath.Join(home, "py2theli"); cfg.Paths.StateDir != want {
		t.Fatalf("state dir = %q, want %q", cfg.Paths.StateDir, want)
	}
	if want := filepath.Join(home, "scripts"); cfg.Paths.ScriptsDir != want {
		t.Fatalf("scripts dir = %q, want %q", cfg.Paths.ScriptsDir, want)
	}
	if cfg.LockPath() != filepath.Join(home, "py2theli", "theli.lock") {
		t.Fatalf("unexpected lock path %q", cfg.LockPath())
	}
	if cfg.Progs != nil {
		t.Fatal("expected no progs.ini")
	}
	if cfg.Journal.Path != filepath.Join(home, "py2theli", "journal.db") {
		t.Fatalf("unexpected journal path %q", cfg.Journal.Path)
	}
}

func TestLoadUsesProgsINI(t *testing.T) {
	home := t.TempDir()
	t.Setenv("THELI_HOME", home)
	t.Setenv("THELI_SCRIPTS", "")
	scripts := filepath.Join(home, "scripts")
	if err := os.MkdirAll(scripts, 0o755); err != nil {
		t.Fatal(err)
	}
	progs := strings.Join([]string{
		"#!/bin/bash",
		"export PIPESOFT=/opt/theli",
		"export SCRIPTS=${PIPESOFT}/scripts/Linux_64;",
		"BIN=${PIPESOFT}/bin/Linux_64/",
		"TEMPDIR=/tmp/theli",
		"export LANG=C",
		"if [ \"${USE_X}\" = \"Y\" ]; then USE_X=Y; fi",
		"P_SEX=${BIN}/sex_theli",
		"S_APLASTROMSCAMP=${SCRIPTS}/create_scamp.sh",
		"",
	}, "\n")
	if err := os.WriteFile(filepath.Join(scripts, "progs.ini"), []byte(progs), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Progs == nil {
		t.Fatal("expected progs.ini to be parsed")
	}
	if cfg.Paths.ScriptsDir != "/opt/theli/scripts/Linux_64" {
		t.Fatalf("scripts dir = %q", cfg.Paths.ScriptsDir)
	}
	if cfg.Paths.BinDir != "/opt/theli/bin/Linux_64" {
		t.Fatalf("bin dir = %q", cfg.Paths.BinDir)
	}
	if cfg.Paths.TempDir != "/tmp/theli" {
		t.Fatalf("temp dir = %q", cfg.Paths.TempDir)
	}
	if cfg.Paths.GUISource != "/opt/theli/gui/theliform.ui.h" {
		t.Fatalf("gui source = %q", cfg.Paths.GUISource)
	}
	if cfg.Progs.Tools["P_SEX"] != "/opt/theli/bin/Linux_64/sex_theli" {
		t.Fatalf("unexpected tool entry %v", cfg.Progs.Tools)
	}
	if cfg.Progs.Scripts["S_APLASTROMSCAMP"] != "/opt/theli/scripts/Linux_64/create_scamp.sh" {
		t.Fatalf("unexpected script entry %v", cfg.Progs.Scripts)
	}
	if _, ok := cfg.Progs.Dir("LANG"); ok {
		t.Fatal("LANG must be skipped")
	}
}

func TestParseProgsDetectsCycles(t *testing.T) {
	_, err := config.ParseProgs(strings.NewReader("A=${B}/x\nB=${A}/y\n"), "/home/user")
	if err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestParseProgsExpandsTilde(t *testing.T) {
	progs, err := config.ParseProgs(strings.NewReader("PIPEHOME=~/.theli\nTEMPDIR=${PIPEHOME}/tmp/\n"), "/home/user")
	if err != nil {
		t.Fatalf("ParseProgs returned error: %v", err)
	}
	if got, _ := progs.Dir("TEMPDIR"); got != "/home/user/.theli/tmp" {
		t.Fatalf("TEMPDIR = %q", got)
	}
}

func TestSampleConfigRoundTrip(t *testing.T) {
	t.Setenv("THELI_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "theli", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution %q %v", resolved, exists)
	}
	if cfg.Run.Verbosity != "normal" || cfg.Run.LogDisplay != "none" || !cfg.Journal.Enabled {
		t.Fatalf("unexpected sample values %+v %+v", cfg.Run, cfg.Journal)
	}
}

func TestValidateRejectsBadChoices(t *testing.T) {
	t.Setenv("THELI_HOME", t.TempDir())
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"verbosity", "[run]\nverbosity = \"loud\"\n", "run.verbosity"},
		{"log display", "[run]\nlog_display = \"vim\"\n", "run.log_display"},
		{"threads", "[run]\nthreads = -2\n", "run.threads"},
		{"format", "[logging]\nformat = \"xml\"\n", "logging.format"},
		{"unknown key", "[run]\nspeed = 3\n", "parse config"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatal(err)
			}
			_, _, _, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestVerbosityLevel(t *testing.T) {
	for name, want := range map[string]int{"quiet": 0, "normal": 1, "full": 2, "FULL": 2, "bogus": 1} {
		if got := config.VerbosityLevel(name); got != want {
			t.Fatalf("VerbosityLevel(%q) = %d, want %d", name, got, want)
		}
	}
}
