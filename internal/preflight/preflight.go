package preflight

import (
	"context"

	"theli/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Optional bool
}

// RunAll executes the checks a run depends on.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// State directory (always checked)
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))

	results = append(results, CheckReadableDir("Scripts directory", cfg.Paths.ScriptsDir))
	results = append(results, CheckReadableDir("Binaries directory", cfg.Paths.BinDir))

	if cfg.Paths.TempDir != "" {
		results = append(results, CheckDirectoryAccess("Temporary directory", cfg.Paths.TempDir))
	}

	for _, status := range CheckSystemDeps(ctx, cfg) {
		r := Result{Name: status.Name, Passed: status.Available, Detail: status.Detail, Optional: status.Optional}
		if r.Passed {
			r.Detail = status.Command
		}
		results = append(results, r)
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}
