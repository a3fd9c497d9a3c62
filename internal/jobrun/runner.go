package jobrun

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"theli/internal/logging"
	"theli/internal/services"
)

// Locker is the system lock taken around every invocation.
type Locker interface {
	Acquire() error
	Release() error
}

// Job is one script invocation requested by a stage.
type Job struct {
	// Name selects the log file; it defaults to the script name without
	// extension.
	Name     string
	Script   string
	Args     []string
	Env      []string
	Parallel bool
	// IgnoreErrors downgrade matching fatal lines to warnings, using the
	// IgnoreMessages entry at the same index.
	IgnoreErrors   []string
	IgnoreMessages []string
}

// LogName returns the name the job's log is written under.
func (j Job) LogName() string {
	if j.Name != "" {
		return j.Name
	}
	return trimExt(j.Script)
}

// Invocation is what a Recorder receives after each completed job.
type Invocation struct {
	Job      Job
	Outcome  Outcome
	Started  time.Time
	Duration time.Duration
}

// Recorder persists invocations, typically into the run journal.
type Recorder interface {
	RecordInvocation(ctx context.Context, inv Invocation) error
}

// Options configures a Runner.
type Options struct {
	ScriptsDir string
	// Launcher is the parallel wrapper script name.
	Launcher  string
	Verbosity int
	Table     KeywordTable
	Lock      Locker
	Logs      *LogWriter
	Logger    *slog.Logger
}

// Option adjusts a Runner after construction.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithRecorder attaches a recorder notified after each invocation.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithStream sets the writer that receives live output at full verbosity.
func WithStream(w io.Writer) Option {
	return func(r *Runner) {
		if w != nil {
			r.stream = w
		}
	}
}

// Runner executes jobs one at a time under the system lock.
type Runner struct {
	opts     Options
	exec     Executor
	recorder Recorder
	stream   io.Writer
	logger   *slog.Logger
	calls    int
}

// NewRunner builds a Runner.
func NewRunner(opts Options, options ...Option) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		opts:   opts,
		exec:   processExecutor{},
		stream: os.Stdout,
		logger: logging.NewComponentLogger(logger, "jobrun"),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Calls returns the number of scripts executed so far.
func (r *Runner) Calls() int { return r.calls }

// ScriptsDir returns the directory scripts are run from.
func (r *Runner) ScriptsDir() string { return r.opts.ScriptsDir }

// Invoke runs job while holding the system lock and classifies its output.
// The returned error covers lock contention, a missing script and execution
// problems; a fatal log line is reported through the Outcome.
func (r *Runner) Invoke(ctx context.Context, job Job) (outcome Outcome, err error) {
	stage, _ := services.StageFromContext(ctx)
	if r.opts.Lock != nil {
		if err := r.opts.Lock.Acquire(); err != nil {
			return Outcome{}, err
		}
		defer func() {
			if releaseErr := r.opts.Lock.Release(); releaseErr != nil {
				logging.WarnWithContext(r.logger, "system lock release failed", "lock_release",
					logging.Error(releaseErr),
					logging.String(logging.FieldErrorHint, "remove the lock marker manually"),
				)
				if err == nil {
					err = releaseErr
				}
			}
		}()
	}

	scriptPath := filepath.Join(r.opts.ScriptsDir, job.Script)
	if _, statErr := os.Stat(scriptPath); statErr != nil {
		return Outcome{}, services.Wrap(services.ErrConfiguration, stage, "invoke",
			fmt.Sprintf("script does not exist: %s", job.Script), statErr)
	}

	cmd := Command{Dir: r.opts.ScriptsDir, Script: job.Script, Args: job.Args, Env: job.Env}
	if job.Parallel {
		cmd.Launcher = r.opts.Launcher
	}
	var onLine func(string)
	if r.opts.Verbosity > 1 {
		onLine = func(line string) { fmt.Fprintln(r.stream, line) }
	}

	logger := logging.WithContext(ctx, r.logger)
	logger.Debug("invoking script",
		logging.String("script", job.Script),
		logging.Strings("args", job.Args),
		logging.Bool("parallel", job.Parallel),
	)
	started := time.Now()
	r.calls++
	lines, runErr := r.exec.Run(ctx, cmd, onLine)
	if runErr != nil {
		if ctx.Err() != nil {
			return Outcome{}, runErr
		}
		return Outcome{}, services.Wrap(services.ErrExternalTool, stage, "invoke", job.Script, runErr)
	}

	outcome = Classify(lines, r.opts.Table, job.IgnoreErrors, job.IgnoreMessages)
	if r.opts.Logs != nil {
		path, logErr := r.opts.Logs.Write(job.LogName(), lines)
		outcome.LogPath = path
		if logErr != nil {
			return outcome, logErr
		}
	}
	duration := time.Since(started)
	logger.Info("script finished",
		logging.String("script", job.Script),
		logging.Int("lines", len(lines)),
		logging.Int("fatal_line", outcome.Line),
		logging.Int("warnings", len(outcome.Warnings)),
		logging.Duration("duration", duration),
		logging.String("log", outcome.LogPath),
	)
	if r.recorder != nil {
		inv := Invocation{Job: job, Outcome: outcome, Started: started, Duration: duration}
		if recErr := r.recorder.RecordInvocation(ctx, inv); recErr != nil {
			logging.WarnWithContext(logger, "journal write failed", "journal_write",
				logging.Error(recErr),
				logging.String(logging.FieldImpact, "run history is incomplete"),
			)
		}
	}
	return outcome, nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
