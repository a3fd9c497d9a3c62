// Package folder indexes one data directory of a reduction: every FITS file
// is mapped to the progress tag encoded in its name, so stages can decide
// whether their input or output is already present.
//
// Scans are debounced. A query rescans the directory when the previous scan is
// older than the debounce delay or when the caller passes a different Scope
// than the one used for the previous scan. Mutators always invalidate the
// index and refuse to run while the system lock is held.
package folder

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"theli/internal/textutil"
)

// DefaultDebounce is the window within which repeated queries reuse a scan.
const DefaultDebounce = 50 * time.Millisecond

// Scope identifies the caller context of a query, typically a stage code and
// folder role. A scope change forces a rescan.
type Scope string

// Guard reports whether the system lock is held. *syslock.Lock satisfies it.
type Guard interface {
	Held() bool
}

// Folder is the tag index of one directory.
type Folder struct {
	abs   string
	chips int
	guard Guard
	delay time.Duration
	now   func() time.Time

	index   map[string]string
	scanned time.Time
	scope   Scope
	valid   bool
}

// Option configures a Folder.
type Option func(*Folder)

// WithGuard makes mutators fail while the guard reports a held lock.
func WithGuard(g Guard) Option {
	return func(f *Folder) {
		f.guard = g
	}
}

// WithChips sets the number of detector chips. Exposure counts of mosaic
// cameras only consider chip 1.
func WithChips(n int) Option {
	return func(f *Folder) {
		f.chips = n
	}
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(f *Folder) {
		f.delay = d
	}
}

// New returns the index for the directory at dir.
func New(dir string, opts ...Option) (*Folder, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve folder %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open folder: %s is not a directory", abs)
	}
	f := &Folder{abs: abs, chips: 1, delay: DefaultDebounce, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Abs returns the absolute directory path.
func (f *Folder) Abs() string { return f.abs }

// Name returns the directory name relative to its parent.
func (f *Folder) Name() string { return filepath.Base(f.abs) }

// Parent returns the enclosing directory, normally the main folder.
func (f *Folder) Parent() string { return filepath.Dir(f.abs) }

func (f *Folder) String() string { return f.abs }

// Chips returns the configured chip count.
func (f *Folder) Chips() int { return f.chips }

// Invalidate drops the cached index.
func (f *Folder) Invalidate() {
	f.valid = false
}

func (f *Folder) refresh(scope Scope) error {
	now := f.now()
	if f.valid && scope == f.scope && now.Sub(f.scanned) <= f.delay {
		return nil
	}
	entries, err := os.ReadDir(f.abs)
	if err != nil {
		return fmt.Errorf("scan %s: %w", f.abs, err)
	}
	next := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !IsFITS(name) || IsMaster(name) {
			continue
		}
		if !entry.Type().IsRegular() {
			// Chip links left by createlinks.sh count when they resolve to files.
			info, err := os.Stat(filepath.Join(f.abs, name))
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		}
		if tag, ok := f.index[name]; ok && f.valid {
			next[name] = tag
			continue
		}
		tag := ExtractTag(filepath.Join(f.abs, name))
		if strings.HasSuffix(tag, ".sky") {
			continue
		}
		next[name] = tag
	}
	f.index = next
	f.scope = scope
	f.scanned = now
	f.valid = true
	return nil
}

// Fits lists the absolute paths of files whose tag matches pattern, in natural
// order. Sky-subtracted variants are left out when ignoreSub is set.
func (f *Folder) Fits(scope Scope, pattern string, ignoreSub bool) ([]string, error) {
	names, err := f.matching(scope, pattern, ignoreSub)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = filepath.Join(f.abs, name)
	}
	return out, nil
}

func (f *Folder) matching(scope Scope, pattern string, ignoreSub bool) ([]string, error) {
	if err := f.refresh(scope); err != nil {
		return nil, err
	}
	var names []string
	for name, tag := range f.index {
		if ignoreSub && isSub(tag) {
			continue
		}
		if matchTag(pattern, tag) {
			names = append(names, name)
		}
	}
	textutil.SortNatural(names)
	return names, nil
}

// Tags returns the distinct tags present.
func (f *Folder) Tags(scope Scope, ignoreSub bool) (TagSet, error) {
	if err := f.refresh(scope); err != nil {
		return nil, err
	}
	set := TagSet{}
	for _, tag := range f.index {
		if ignoreSub && isSub(tag) {
			continue
		}
		set[tag] = struct{}{}
	}
	return set, nil
}

// ContainsTag reports whether any file carries a tag matching pattern.
func (f *Folder) ContainsTag(scope Scope, pattern string) (bool, error) {
	tags, err := f.Tags(scope, false)
	if err != nil {
		return false, err
	}
	return tags.Match(pattern), nil
}

// FitsCount counts exposures among the files matching pattern, ignoring
// sky-subtracted variants. Raw files count individually; split files of mosaic
// cameras count once per exposure through their chip-1 file.
func (f *Folder) FitsCount(scope Scope, pattern string) (int, error) {
	names, err := f.matching(scope, pattern, true)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, name := range names {
		if f.chips <= 1 || f.index[name] == TagRaw || chipNumber(name) == "1" {
			count++
		}
	}
	return count, nil
}

// Contains reports whether any directory entry matches the glob pattern.
func (f *Folder) Contains(pattern string) bool {
	entries, err := os.ReadDir(f.abs)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if ok, _ := path.Match(pattern, entry.Name()); ok {
			return true
		}
	}
	return false
}

// Folders lists the absolute paths of subdirectories in natural order.
func (f *Folder) Folders() []string {
	entries, err := os.ReadDir(f.abs)
	if err != nil {
		return nil
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			out = append(out, entry.Name())
		}
	}
	textutil.SortNatural(out)
	for i, name := range out {
		out[i] = filepath.Join(f.abs, name)
	}
	return out
}

func matchTag(pattern, tag string) bool {
	ok, err := path.Match(pattern, tag)
	return err == nil && ok
}

func isSub(tag string) bool {
	return strings.HasSuffix(tag, SubSuffix)
}

func (f *Folder) checkGuard(operation string) error {
	if f.guard != nil && f.guard.Held() {
		return lockHeld(operation, f.abs)
	}
	return nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func notExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
