// Package staging manages the THELI scratch directory. Scripts leave
// intermediate files there; a new reduction starts from an empty directory
// because leftovers may belong to a different project.
package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"theli/internal/logging"
)

// CleanResult contains the outcome of a cleanup operation.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanTemp removes every regular file directly inside tempDir. Directories
// are kept; a missing tempDir is not an error.
func CleanTemp(ctx context.Context, tempDir string, logger *slog.Logger) CleanResult {
	return clean(ctx, tempDir, logger, func(os.FileInfo) bool { return true })
}

// CleanStale removes regular files in tempDir older than maxAge.
func CleanStale(ctx context.Context, tempDir string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	cutoff := time.Now().Add(-maxAge)
	return clean(ctx, tempDir, logger, func(info os.FileInfo) bool {
		return info.ModTime().Before(cutoff)
	})
}

func clean(ctx context.Context, tempDir string, logger *slog.Logger, remove func(os.FileInfo) bool) CleanResult {
	result := CleanResult{}
	if logger == nil {
		logger = logging.NewNop()
	}

	tempDir = strings.TrimSpace(tempDir)
	if tempDir == "" {
		return result
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: tempDir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, CleanupError{Path: tempDir, Error: ctx.Err()})
			return result
		}
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(tempDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		if !remove(info) {
			continue
		}
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			logger.Warn("failed to remove temp file",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "temp_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check temp_dir permissions"),
				logging.String(logging.FieldImpact, "stale scratch files may leak into this reduction"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
	}

	if len(result.Removed) > 0 {
		logger.Debug("cleared temp directory",
			logging.String("path", tempDir),
			logging.Int("removed", len(result.Removed)),
			logging.String(logging.FieldEventType, "temp_cleanup"),
		)
	}
	return result
}

// Usage summarises the contents of the temp directory.
type Usage struct {
	Path    string
	Files   int
	Size    int64
	Oldest  time.Time
	Missing bool
}

// Inspect reports the number, size and age of the files in tempDir.
func Inspect(tempDir string) (Usage, error) {
	usage := Usage{Path: tempDir}
	tempDir = strings.TrimSpace(tempDir)
	if tempDir == "" {
		usage.Missing = true
		return usage, nil
	}
	err := filepath.Walk(tempDir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				usage.Missing = true
				return filepath.SkipDir
			}
			return nil // best effort
		}
		if info.IsDir() {
			return nil
		}
		usage.Files++
		usage.Size += info.Size()
		if usage.Oldest.IsZero() || info.ModTime().Before(usage.Oldest) {
			usage.Oldest = info.ModTime()
		}
		return nil
	})
	return usage, err
}
