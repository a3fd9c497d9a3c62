package jobrun

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// Command describes one script invocation.
type Command struct {
	// Dir is the scripts directory the command runs in.
	Dir    string
	Script string
	Args   []string
	// Env replaces the process environment when non-nil.
	Env []string
	// Launcher, when set, wraps the script (parallel_manager.sh).
	Launcher string
}

// Argv returns the program and its arguments relative to Dir.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+2)
	if c.Launcher != "" {
		argv = append(argv, "./"+c.Launcher, c.Script)
	} else {
		argv = append(argv, "./"+c.Script)
	}
	return append(argv, c.Args...)
}

// Executor runs a command and returns its merged stdout and stderr lines.
// onLine, when non-nil, receives each line as it is read.
type Executor interface {
	Run(ctx context.Context, cmd Command, onLine func(string)) ([]string, error)
}

type processExecutor struct{}

// Run starts the command and collects its output. The exit status is not
// consulted; only start failures, read errors and cancellation are errors.
func (processExecutor) Run(ctx context.Context, c Command, onLine func(string)) ([]string, error) {
	argv := c.Argv()
	cmd := exec.CommandContext(ctx, filepath.Join(c.Dir, argv[0]), argv[1:]...) //nolint:gosec
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Script, err)
	}

	var lines []string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		if onLine != nil {
			onLine(line)
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// Keep the pipe flowing so the script can exit.
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return lines, fmt.Errorf("run %s: %w", c.Script, ctx.Err())
	}
	if scanErr != nil {
		return lines, fmt.Errorf("scan output of %s: %w", c.Script, scanErr)
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return lines, fmt.Errorf("wait %s: %w", c.Script, waitErr)
	}
	return lines, nil
}
