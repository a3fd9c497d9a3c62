package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"theli/internal/jobrun"
	"theli/internal/reduction"
	"theli/internal/services"
)

// Run statuses.
const (
	RunRunning     = "running"
	RunSucceeded   = "succeeded"
	RunFailed      = "failed"
	RunInterrupted = "interrupted"
)

// Run is one "theli run" invocation.
type Run struct {
	ID         string
	MainDir    string
	Instrument string
	Jobs       string
	Title      string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// DecisionRecord is a stored stage decision.
type DecisionRecord struct {
	ID      int64
	RunID   string
	Stage   string
	Role    string
	Folder  string
	Kind    string
	Message string
	Time    time.Time
}

// InvocationRecord is a stored script invocation.
type InvocationRecord struct {
	ID        int64
	RunID     string
	Stage     string
	Script    string
	Args      []string
	Parallel  bool
	FatalLine int
	FatalText string
	Warnings  []string
	LogPath   string
	StartedAt time.Time
	Duration  time.Duration
}

// Journal is the SQLite run history.
type Journal struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or opens the journal at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	j := &Journal{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}
	if err := j.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the database file.
func (j *Journal) Path() string { return j.path }

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// StartRun inserts run with status running. An empty ID is replaced by a
// new UUID.
func (j *Journal) StartRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.Status = RunRunning
	run.StartedAt = j.now()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, main_dir, instrument, jobs, title, status, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.MainDir, run.Instrument, run.Jobs, nullableString(run.Title), run.Status,
		formatTime(run.StartedAt),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun closes a run. runErr selects the final status.
func (j *Journal) FinishRun(ctx context.Context, id string, runErr error) error {
	status := RunSucceeded
	message := ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		status = RunInterrupted
		message = runErr.Error()
	default:
		status = RunFailed
		message = runErr.Error()
	}
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		status, nullableString(message), formatTime(j.now()), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, "", "finish run", id, nil)
	}
	return nil
}

// RecordDecision stores one stage decision.
func (j *Journal) RecordDecision(ctx context.Context, d reduction.Decision) error {
	if d.RunID == "" {
		return nil
	}
	at := d.Time
	if at.IsZero() {
		at = j.now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO decisions (run_id, stage, role, folder, kind, message, recorded_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, string(d.Stage), nullableString(string(d.Role)), nullableString(d.Folder),
		d.Kind, nullableString(d.Message), formatTime(at.UTC()),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// RecordInvocation stores one script invocation. The run is taken from ctx;
// invocations outside a run are not recorded.
func (j *Journal) RecordInvocation(ctx context.Context, inv jobrun.Invocation) error {
	runID, ok := services.RunIDFromContext(ctx)
	if !ok {
		return nil
	}
	stage, _ := services.StageFromContext(ctx)
	warnings := make([]string, len(inv.Outcome.Warnings))
	for i, w := range inv.Outcome.Warnings {
		warnings[i] = w.Message
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO invocations (
            run_id, stage, script, args, parallel, fatal_line, fatal_text,
            warnings, log_path, started_at, duration_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, nullableString(stage), inv.Job.Script, strings.Join(inv.Job.Args, "\x1f"),
		boolToInt(inv.Job.Parallel), inv.Outcome.Line, nullableString(inv.Outcome.Text),
		nullableString(strings.Join(warnings, "\n")), nullableString(inv.Outcome.LogPath),
		formatTime(inv.Started.UTC()), inv.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

var (
	_ reduction.Observer = (*Journal)(nil)
	_ jobrun.Recorder    = (*Journal)(nil)
)
