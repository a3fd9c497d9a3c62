package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"theli/internal/config"
	"theli/internal/logging"
	"theli/internal/services"
)

func TestNewFromConfigWritesDiagnosticsFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello diagnostics")

	content, err := os.ReadFile(cfg.DiagnosticsLogPath())
	if err != nil {
		t.Fatalf("read diagnostics log: %v", err)
	}
	if !strings.Contains(string(content), "hello diagnostics") {
		t.Fatalf("expected message in diagnostics log, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Path: logPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerComposesSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "subject.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Path: logPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithStage(context.Background(), "Cb")
	ctx = services.WithFolderRole(ctx, "bias")
	component := logging.NewComponentLogger(logger, "reduction")
	logging.WithContext(ctx, component).Info("stage skipped", logging.String("reason", "master found"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{"INFO [reduction] Cb (bias) stage skipped", `reason="master found"`} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Path: logPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "lock busy", "lock_held")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode json record: %v", err)
	}
	if record["ts"] == nil || record["level"] != "warn" || record["msg"] != "lock busy" {
		t.Fatalf("unexpected record %v", record)
	}
	if record[logging.FieldEventType] != "lock_held" || record[logging.FieldImpact] == nil || record[logging.FieldErrorHint] == nil {
		t.Fatalf("expected injected warning fields, got %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml", Path: filepath.Join(t.TempDir(), "x.log")}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestContextFieldsEmpty(t *testing.T) {
	if fields := logging.ContextFields(context.Background()); len(fields) != 0 {
		t.Fatalf("expected no fields, got %v", fields)
	}
}

func TestErrorWithContextAddsHint(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "error.log")
	logger, err := logging.New(logging.Options{Format: "json", Path: logPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failed", logging.String(logging.FieldErrorHint, "see create_scamp.log"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode json record: %v", err)
	}
	if record[logging.FieldEventType] != "stage_failed" || record[logging.FieldErrorHint] != "see create_scamp.log" {
		t.Fatalf("unexpected record %v", record)
	}
}
