package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"theli/internal/jobrun"
	"theli/internal/logs"
	"theli/internal/services"
)

const reportContext = 3

// reportFailure explains a failed run on stderr: lock contention gets the
// unlock hint, a fatal log line is shown with the surrounding log lines and
// optionally opened in the configured editor.
func reportFailure(cmd *cobra.Command, err error, display string) {
	out := cmd.ErrOrStderr()
	if errors.Is(err, services.ErrLockHeld) {
		fmt.Fprintln(out, "Another theli process is running. If it is not, remove the stale lock with 'theli unlock'.")
		return
	}
	var failure *jobrun.FailureError
	if !errors.As(err, &failure) || failure.LogPath == "" {
		return
	}
	writeExcerpt(out, failure)
	if display != "" && display != "none" && isatty.IsTerminal(os.Stdout.Fd()) {
		if openErr := openLog(display, failure.LogPath, failure.LogLine()); openErr != nil {
			fmt.Fprintf(out, "could not open log with %s: %v\n", display, openErr)
		}
	}
}

func writeExcerpt(w io.Writer, failure *jobrun.FailureError) {
	fatal := failure.LogLine()
	excerpt, err := logs.Around(failure.LogPath, fatal, reportContext, reportContext)
	if err != nil {
		fmt.Fprintf(w, "Log: %s (line %d)\n", failure.LogPath, fatal)
		return
	}
	fmt.Fprintf(w, "Log: %s\n", failure.LogPath)
	width := len(strconv.Itoa(excerpt.First + len(excerpt.Lines) - 1))
	for i, line := range excerpt.Lines {
		n := excerpt.First + i
		marker := " "
		if n == fatal {
			marker = ">"
		}
		fmt.Fprintf(w, "%s %*d | %s\n", marker, width, n, strings.TrimRight(line, " \t"))
	}
}

// displayArgs returns the editor invocation that opens path at line.
func displayArgs(program, path string, line int) []string {
	switch program {
	case "kate":
		return []string{"kate", "-l", strconv.Itoa(line), path}
	default:
		return []string{program, fmt.Sprintf("+%d", line), path}
	}
}

func openLog(program, path string, line int) error {
	args := displayArgs(program, path, line)
	editor := exec.Command(args[0], args[1:]...)
	editor.Stdin = os.Stdin
	editor.Stdout = os.Stdout
	editor.Stderr = os.Stderr
	return editor.Run()
}
