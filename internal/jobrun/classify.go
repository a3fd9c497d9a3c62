package jobrun

import (
	"fmt"
	"strings"

	"theli/internal/services"
)

// Warning is an error line that matched one of the caller's ignore patterns.
type Warning struct {
	Pattern string
	Message string
}

// Outcome is the classification of one invocation. A zero Line means success.
type Outcome struct {
	Line     int
	Text     string
	Warnings []Warning
	// LogPath is the log written for the invocation, set by Runner.
	LogPath string
}

// Failed reports whether a fatal line was found.
func (o Outcome) Failed() bool { return o.Line > 0 }

// Err returns a *FailureError for a failed outcome and nil otherwise.
func (o Outcome) Err(job string) error {
	if !o.Failed() {
		return nil
	}
	return &FailureError{Job: job, Line: o.Line, Text: o.Text, LogPath: o.LogPath}
}

// FailureError reports the first fatal log line of a script. It matches
// services.ErrExternalTool.
type FailureError struct {
	Job     string
	Line    int
	Text    string
	LogPath string
}

func (e *FailureError) Error() string {
	if e.LogPath == "" {
		return fmt.Sprintf("%s failed at output line %d: %s", e.Job, e.Line, strings.TrimSpace(e.Text))
	}
	return fmt.Sprintf("%s failed at %s:%d: %s", e.Job, e.LogPath, e.LogLine(), strings.TrimSpace(e.Text))
}

// LogLine is the line of the fatal text in the log file, below the banner.
func (e *FailureError) LogLine() int {
	return e.Line + BannerLines
}

// Unwrap ties the failure to the external tool marker.
func (e *FailureError) Unwrap() error { return services.ErrExternalTool }

// Classify scans output for the first line that contains an error keyword and
// no exception keyword. Such a line is fatal unless it contains one of
// ignoreErr, in which case a warning is recorded and scanning goes on.
// ignoreMsg holds the warning text for the pattern at the same index.
func Classify(lines []string, table KeywordTable, ignoreErr, ignoreMsg []string) Outcome {
	var outcome Outcome
	for i, line := range lines {
		if !table.IsError(line) {
			continue
		}
		ignored := false
		for j, pattern := range ignoreErr {
			if pattern == "" || !strings.Contains(line, pattern) {
				continue
			}
			ignored = true
			message := pattern
			if j < len(ignoreMsg) && ignoreMsg[j] != "" {
				message = ignoreMsg[j]
			}
			outcome.Warnings = append(outcome.Warnings, Warning{Pattern: pattern, Message: message})
		}
		if !ignored {
			outcome.Line = i + 1
			outcome.Text = line
			return outcome
		}
	}
	return outcome
}
