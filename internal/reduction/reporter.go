package reduction

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Reporter receives the user-facing progress of a run.
type Reporter interface {
	Header(message string)
	Message(message string)
	Skipped(message string)
	Warning(message string)
	Error(message string, critical bool)
	Separator()
}

// ANSI styles used on terminals.
const (
	styleReset  = "\033[0;0;0m"
	styleHeader = "\033[1;34m"
	styleOK     = "\033[0;32m"
	styleWarn   = "\033[0;33m"
	styleError  = "\033[0;31m"
	styleFatal  = "\033[1;31m"
)

// ConsoleReporter prints progress lines. Verbosity 0 only shows errors.
type ConsoleReporter struct {
	w         io.Writer
	verbosity int
	color     bool
}

// NewConsoleReporter writes to w, styling output when w is a terminal.
func NewConsoleReporter(w io.Writer, verbosity int) *ConsoleReporter {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &ConsoleReporter{w: w, verbosity: verbosity, color: color}
}

func (c *ConsoleReporter) styled(text, style string) string {
	if !c.color {
		return text
	}
	return style + text + styleReset
}

func (c *ConsoleReporter) Header(message string) {
	if c.verbosity > 0 {
		fmt.Fprintln(c.w, c.styled("> "+message, styleHeader))
	}
}

func (c *ConsoleReporter) Message(message string) {
	if c.verbosity > 0 {
		fmt.Fprintln(c.w, message)
	}
}

func (c *ConsoleReporter) Skipped(message string) {
	if c.verbosity > 0 {
		fmt.Fprintln(c.w, c.styled("SKIPPED:", styleOK), message)
	}
}

func (c *ConsoleReporter) Warning(message string) {
	if c.verbosity > 0 {
		fmt.Fprintln(c.w, c.styled("WARNING:", styleWarn), message)
	}
}

func (c *ConsoleReporter) Error(message string, critical bool) {
	style := styleError
	if critical {
		style = styleFatal
		fmt.Fprintln(c.w)
	}
	fmt.Fprintln(c.w, c.styled("ERROR:  ", style), message)
	if critical {
		fmt.Fprintln(c.w)
	}
}

func (c *ConsoleReporter) Separator() {
	if c.verbosity > 0 {
		fmt.Fprintln(c.w)
	}
}

type nopReporter struct{}

func (nopReporter) Header(string)      {}
func (nopReporter) Message(string)     {}
func (nopReporter) Skipped(string)     {}
func (nopReporter) Warning(string)     {}
func (nopReporter) Error(string, bool) {}
func (nopReporter) Separator()         {}

// Decision kinds recorded for every stage and folder.
const (
	DecisionExecute       = "execute"
	DecisionSkip          = "skip"
	DecisionRedoSkip      = "redo_skip"
	DecisionInsufficient  = "insufficient"
	DecisionNotApplicable = "not_applicable"
	DecisionFailed        = "failed"
)

// Decision is one outcome of the stage decision procedure.
type Decision struct {
	RunID   string
	Stage   Code
	Role    Role
	Folder  string
	Kind    string
	Message string
	Time    time.Time
}

// Observer persists decisions, typically into the run journal.
type Observer interface {
	RecordDecision(ctx context.Context, d Decision) error
}
