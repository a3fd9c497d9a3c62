package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrPrecondition     = errors.New("precondition failed")
	ErrInsufficientData = errors.New("insufficient data")
	ErrExternalTool     = errors.New("external tool error")
	ErrLockHeld         = errors.New("system lock held")
	ErrNotFound         = errors.New("not found")
)

// Exit statuses reported by the theli binary.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitToolFailure = 2
	ExitLockHeld    = 3
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later exit-status classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrConfiguration
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrLockHeld):
		return ExitLockHeld
	case errors.Is(err, ErrExternalTool):
		return ExitToolFailure
	default:
		return ExitFailure
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "reduction failure"
	}
	return strings.Join(parts, ": ")
}
