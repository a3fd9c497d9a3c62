package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"theli/internal/logging"
)

func TestCleanTempInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanTemp(context.Background(), dir, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanTempRemovesFilesKeepsDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"a.cat", "b.fits"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	sub := filepath.Join(tmpDir, "keep")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	result := CleanTemp(context.Background(), tmpDir, nil)

	if len(result.Removed) != 2 {
		t.Fatalf("expected 2 removed, got %d", len(result.Removed))
	}
	if _, err := os.Stat(sub); err != nil {
		t.Fatalf("directory should be kept: %v", err)
	}
	entries, _ := os.ReadDir(tmpDir)
	if len(entries) != 1 {
		t.Fatalf("expected only the directory to remain, got %d entries", len(entries))
	}
}

func TestCleanStaleKeepsRecentFiles(t *testing.T) {
	tmpDir := t.TempDir()
	oldFile := filepath.Join(tmpDir, "old.tmp")
	newFile := filepath.Join(tmpDir, "new.tmp")
	for _, p := range []string{oldFile, newFile} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldFile, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())

	if len(result.Removed) != 1 || result.Removed[0] != oldFile {
		t.Fatalf("expected only %s removed, got %v", oldFile, result.Removed)
	}
	if _, err := os.Stat(newFile); err != nil {
		t.Fatalf("recent file should still exist: %v", err)
	}
}

func TestCleanTempStopsOnCancelledContext(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "a"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := CleanTemp(ctx, tmpDir, nil)
	if len(result.Removed) != 0 || len(result.Errors) != 1 {
		t.Fatalf("expected cancellation error and no removals, got %+v", result)
	}
}

func TestInspect(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "a"), []byte("abcd"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	usage, err := Inspect(tmpDir)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if usage.Files != 1 || usage.Size != 4 || usage.Missing {
		t.Fatalf("unexpected usage %+v", usage)
	}

	missing, err := Inspect(filepath.Join(tmpDir, "nope"))
	if err != nil {
		t.Fatalf("Inspect missing: %v", err)
	}
	if !missing.Missing {
		t.Fatal("expected missing directory to be reported")
	}
}
