package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, path string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), mode); err != nil {
		t.Fatalf("write stub: %v", err)
	}
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	writeStub(t, present, 0o755)
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
}

func TestCheckBinariesInDirectory(t *testing.T) {
	dir := t.TempDir()
	writeStub(t, filepath.Join(dir, "scamp"), 0o755)
	writeStub(t, filepath.Join(dir, "swarp"), 0o644)

	results := CheckBinaries([]Requirement{
		{Name: "Scamp", Command: "scamp", Dir: dir},
		{Name: "SWarp", Command: "swarp", Dir: dir},
		{Name: "SExtractor", Command: "sex", Dir: dir, Optional: true},
	})
	if !results[0].Available || results[0].Command != filepath.Join(dir, "scamp") {
		t.Fatalf("scamp status = %#v", results[0])
	}
	if results[1].Available {
		t.Fatalf("non-executable swarp reported available")
	}
	if results[2].Available || results[2].Detail == "" {
		t.Fatalf("sex status = %#v", results[2])
	}

	missing := Missing(results)
	if len(missing) != 1 || missing[0].Name != "SWarp" {
		t.Fatalf("missing = %#v, want only SWarp", missing)
	}
}

func TestTHELIRequirementsSetDirectories(t *testing.T) {
	reqs := THELIRequirements("/opt/theli/bin", "/opt/theli/scripts")
	if len(reqs) != len(Binaries)+len(Scripts)+len(Host) {
		t.Fatalf("got %d requirements", len(reqs))
	}
	for _, r := range reqs {
		switch r.Command {
		case "scamp":
			if r.Dir != "/opt/theli/bin" {
				t.Fatalf("scamp dir = %q", r.Dir)
			}
		case "parallel_manager.sh":
			if r.Dir != "/opt/theli/scripts" {
				t.Fatalf("launcher dir = %q", r.Dir)
			}
		case "gawk":
			if r.Dir != "" {
				t.Fatalf("gawk should resolve from PATH, dir = %q", r.Dir)
			}
		}
	}
	if Binaries[0].Dir != "" {
		t.Fatal("THELIRequirements modified the shared table")
	}
}
