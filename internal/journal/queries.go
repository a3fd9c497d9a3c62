package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"theli/internal/services"
)

const runColumns = "id, main_dir, instrument, jobs, title, status, error_message, started_at, finished_at"

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run                       Run
		title, errMsg, finishedAt sql.NullString
		startedAt                 string
	)
	if err := scanner.Scan(&run.ID, &run.MainDir, &run.Instrument, &run.Jobs, &title,
		&run.Status, &errMsg, &startedAt, &finishedAt); err != nil {
		return Run{}, err
	}
	run.Title = title.String
	run.Error = errMsg.String
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTime(finishedAt.String)
	}
	return run, nil
}

// Runs lists the most recent runs first. limit <= 0 lists all.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns the run whose ID starts with prefix. An ambiguous or
// unknown prefix is services.ErrNotFound.
func (j *Journal) GetRun(ctx context.Context, prefix string) (Run, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return Run{}, services.Wrap(services.ErrNotFound, "", "get run", "empty run id", nil)
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE substr(id, 1, ?) = ? LIMIT 2`, len(prefix), prefix)
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return Run{}, fmt.Errorf("scan run: %w", err)
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	switch len(found) {
	case 0:
		return Run{}, services.Wrap(services.ErrNotFound, "", "get run", fmt.Sprintf("no run %q", prefix), nil)
	case 1:
		return found[0], nil
	default:
		return Run{}, services.Wrap(services.ErrNotFound, "", "get run", fmt.Sprintf("run id %q is ambiguous", prefix), nil)
	}
}

// LastRun returns the most recent run, or false when the journal is empty.
func (j *Journal) LastRun(ctx context.Context) (Run, bool, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("last run: %w", err)
	}
	return run, true, nil
}

// Decisions lists the decisions of a run in recording order.
func (j *Journal) Decisions(ctx context.Context, runID string) ([]DecisionRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, stage, role, folder, kind, message, recorded_at
         FROM decisions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var (
			d                     DecisionRecord
			role, folder, message sql.NullString
			at                    string
		)
		if err := rows.Scan(&d.ID, &d.RunID, &d.Stage, &role, &folder, &d.Kind, &message, &at); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Role, d.Folder, d.Message = role.String, folder.String, message.String
		d.Time = parseTime(at)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Invocations lists the script invocations of a run in order.
func (j *Journal) Invocations(ctx context.Context, runID string) ([]InvocationRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, stage, script, args, parallel, fatal_line, fatal_text,
                warnings, log_path, started_at, duration_ms
         FROM invocations WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list invocations: %w", err)
	}
	defer rows.Close()

	var out []InvocationRecord
	for rows.Next() {
		var (
			inv                                InvocationRecord
			stage, fatalText, warnings, logRef sql.NullString
			args, started                      string
			parallel                           int
			durationMS                         int64
		)
		if err := rows.Scan(&inv.ID, &inv.RunID, &stage, &inv.Script, &args, &parallel,
			&inv.FatalLine, &fatalText, &warnings, &logRef, &started, &durationMS); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		inv.Stage = stage.String
		if args != "" {
			inv.Args = strings.Split(args, "\x1f")
		}
		inv.Parallel = parallel != 0
		inv.FatalText = fatalText.String
		if warnings.String != "" {
			inv.Warnings = strings.Split(warnings.String, "\n")
		}
		inv.LogPath = logRef.String
		inv.StartedAt = parseTime(started)
		inv.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Prune deletes all but the keep most recent runs with their decisions and
// invocations.
func (j *Journal) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (
            SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
        )`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}
