package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"theli/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "Cb", "process_bias_para.sh", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"Cb", "process_bias_para.sh", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutDetail(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "reduction failure") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestExitCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, services.ExitOK},
		{"configuration", services.Wrap(services.ErrConfiguration, "Cs", "", "ambiguous", nil), services.ExitFailure},
		{"precondition", services.Wrap(services.ErrPrecondition, "Cf", "", "no master bias", nil), services.ExitFailure},
		{"insufficient", services.Wrap(services.ErrInsufficientData, "Cb", "", "2 frames", nil), services.ExitFailure},
		{"tool", services.Wrap(services.ErrExternalTool, "Cb", "", "line 4", nil), services.ExitToolFailure},
		{"lock", fmt.Errorf("invoke: %w", services.ErrLockHeld), services.ExitLockHeld},
		{"plain", errors.New("other"), services.ExitFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.ExitCode(tc.err); got != tc.want {
				t.Fatalf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
