package jobrun

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"theli/internal/services"
)

var testTable = KeywordTable{
	Errors:     []string{"*Error*", "rror", "Segmentation fault"},
	Exceptions: []string{"error_", "RMS_ERROR"},
}

func TestClassifySuccess(t *testing.T) {
	lines := []string{
		"processing chip 1",
		"writing file_error_1.fits",
		"Segmentation-free run",
	}
	outcome := Classify(lines, testTable, nil, nil)
	if outcome.Failed() || len(outcome.Warnings) != 0 {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if err := outcome.Err("process_bias_para"); err != nil {
		t.Fatalf("Err = %v, want nil", err)
	}
}

func TestClassifyFirstFatalLine(t *testing.T) {
	lines := []string{
		"start",
		"file_error_2.fits written",
		"Error: cannot open obj_1.fits",
		"Segmentation fault",
	}
	outcome := Classify(lines, testTable, nil, nil)
	if outcome.Line != 3 || outcome.Text != "Error: cannot open obj_1.fits" {
		t.Fatalf("outcome = %+v, want line 3", outcome)
	}
	outcome.LogPath = "/state/logs/process_bias_para.log"
	err := outcome.Err("process_bias_para")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("Err = %v, want ErrExternalTool", err)
	}
	var failure *FailureError
	if !errors.As(err, &failure) || failure.Line != 3 {
		t.Fatalf("expected FailureError at line 3, got %v", err)
	}
	if failure.LogLine() != 3+BannerLines {
		t.Fatalf("LogLine = %d, want %d", failure.LogLine(), 3+BannerLines)
	}
	if !strings.Contains(err.Error(), "process_bias_para.log:7") {
		t.Fatalf("message %q does not name the log location", err)
	}
}

func TestClassifyIgnoredPatternsBecomeWarnings(t *testing.T) {
	lines := []string{
		"Error: not enough objects in chip 3",
		"Error: not enough objects in chip 5",
		"done",
	}
	ignore := []string{"not enough objects", "never matched"}
	outcome := Classify(lines, testTable, ignore, []string{"chip skipped"})
	if outcome.Failed() {
		t.Fatalf("ignored error treated as fatal: %+v", outcome)
	}
	want := []Warning{
		{Pattern: "not enough objects", Message: "chip skipped"},
		{Pattern: "not enough objects", Message: "chip skipped"},
	}
	if !reflect.DeepEqual(outcome.Warnings, want) {
		t.Fatalf("warnings = %+v, want %+v", outcome.Warnings, want)
	}

	lines = append(lines, "Segmentation fault")
	outcome = Classify(lines, testTable, ignore, nil)
	if outcome.Line != 4 {
		t.Fatalf("fatal line after warnings = %d, want 4", outcome.Line)
	}
	if outcome.Warnings[0].Message != "not enough objects" {
		t.Fatalf("missing message should fall back to pattern, got %+v", outcome.Warnings[0])
	}
}

func TestLoadKeywordTable(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "theliform.ui.h")
	content := strings.Join([]string{
		"void theliForm::init_errorlist()",
		"{",
		`    errorlist << "rror";`,
		`    errorlist << "Segmentation fault";`,
		`    falseerrorlist << "error_";`,
		`    falseerrorlist << "say \"error\" quietly";`,
		"}",
	}, "\n")
	if err := os.WriteFile(source, []byte(content), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	table, err := LoadKeywordTable(source)
	if err != nil {
		t.Fatalf("LoadKeywordTable returned error: %v", err)
	}
	if want := []string{GenericErrorKeyword, "rror", "Segmentation fault"}; !reflect.DeepEqual(table.Errors, want) {
		t.Fatalf("errors = %q", table.Errors)
	}
	if want := []string{"error_", `say "error" quietly`}; !reflect.DeepEqual(table.Exceptions, want) {
		t.Fatalf("exceptions = %q", table.Exceptions)
	}

	empty := filepath.Join(dir, "empty.ui.h")
	if err := os.WriteFile(empty, []byte(`errorlist << "rror";`), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if _, err := LoadKeywordTable(empty); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error without exceptions, got %v", err)
	}
	if _, err := LoadKeywordTable(filepath.Join(dir, "missing")); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing file, got %v", err)
	}
}

func TestDefaultKeywordTable(t *testing.T) {
	table := DefaultKeywordTable()
	if !table.IsError("Error: something broke") {
		t.Fatal("expected generic error to match")
	}
	if table.IsError("wrote image_error_map.fits") {
		t.Fatal("exception keyword did not clear the match")
	}
}
