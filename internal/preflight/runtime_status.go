package preflight

import (
	"fmt"
	"os"

	"theli/internal/config"
	"theli/internal/syslock"
)

// CheckLock reports whether another theli process holds the system lock.
func CheckLock(cfg *config.Config) Result {
	const name = "System lock"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	lock := syslock.New(cfg.LockPath())
	if !lock.Held() {
		return Result{Name: name, Passed: true, Detail: "free"}
	}
	detail := fmt.Sprintf("held (%s)", lock.Path())
	if info, err := os.Stat(lock.Path()); err == nil {
		detail = fmt.Sprintf("held since %s (%s)", info.ModTime().Format("2006-01-02 15:04:05"), lock.Path())
	}
	return Result{Name: name, Detail: detail}
}

// CheckJournal reports where the run journal is kept.
func CheckJournal(cfg *config.Config) Result {
	const name = "Journal"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.Journal.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled", Optional: true}
	}
	if _, err := os.Stat(cfg.Journal.Path); err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (created on first run)", cfg.Journal.Path), Optional: true}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Journal.Path, err), Optional: true}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Journal.Path, Optional: true}
}
