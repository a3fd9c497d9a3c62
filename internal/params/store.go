// Package params manages the THELI parameter files (param_set1.ini to
// param_set3.ini) that every processing script sources.
//
// Each file is an ordered list of KEY=VALUE lines; each key lives in exactly
// one file. Updates are validated against the closed set of known keys before
// anything is written, and files are always rewritten in full.
package params

import (
	"bufio"
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"theli/internal/services"
)

//go:embed defaults/*.ini
var defaultTemplates embed.FS

// FileNames lists the parameter files in lookup order.
var FileNames = []string{"param_set1.ini", "param_set2.ini", "param_set3.ini"}

// resetTarget receives the environment-derived values on Reset.
const resetTarget = "param_set1.ini"

// Guard reports whether the system lock is held. *syslock.Lock satisfies it.
type Guard interface {
	Held() bool
}

// Entry is one key/value pair together with the file holding it.
type Entry struct {
	File  string
	Key   string
	Value string
}

type paramFile struct {
	name  string
	lines []string
}

// Store is the in-memory view of the parameter files under one directory.
type Store struct {
	dir         string
	guard       Guard
	templateFor func(name string) string
	systemPath  string
	environment map[string]string
	files       []paramFile
}

// Option configures a Store.
type Option func(*Store)

// WithGuard makes every mutation fail while the guard reports a held lock.
func WithGuard(g Guard) Option {
	return func(s *Store) {
		s.guard = g
	}
}

// WithTemplates points Reset at site templates; path returns the template
// file for a parameter file name. Missing templates fall back to the built-in
// defaults.
func WithTemplates(path func(name string) string) Option {
	return func(s *Store) {
		s.templateFor = path
	}
}

// WithSystemDefaults names a KEY=VALUE file applied after every Reset.
func WithSystemDefaults(path string) Option {
	return func(s *Store) {
		s.systemPath = path
	}
}

// WithEnvironment supplies values (GUIVERSION, KERNEL, ...) substituted into
// param_set1.ini on Reset.
func WithEnvironment(values map[string]string) Option {
	return func(s *Store) {
		s.environment = values
	}
}

// Open loads the parameter files from dir. Files that do not exist yet are
// populated from their templates in memory only.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	for _, name := range FileNames {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			data, err = s.template(name)
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		s.files = append(s.files, paramFile{name: name, lines: splitLines(data)})
	}
	return s, nil
}

// Dir returns the directory holding the parameter files.
func (s *Store) Dir() string {
	return s.dir
}

// Get returns the value of key from the first line starting with "key=".
func (s *Store) Get(key string) (string, error) {
	prefix := key + "="
	for _, file := range s.files {
		for _, line := range file.lines {
			if isComment(line) {
				continue
			}
			if strings.HasPrefix(line, prefix) {
				return strings.TrimSpace(line[len(prefix):]), nil
			}
		}
	}
	return "", services.Wrap(services.ErrConfiguration, "", "params", fmt.Sprintf("found no parameter matching keyword %q", key), nil)
}

// Lookup is Get without the error for callers that treat missing keys as empty.
func (s *Store) Lookup(key string) (string, bool) {
	value, err := s.Get(key)
	return value, err == nil
}

// Set replaces every supplied key. All keys must be known; otherwise the
// returned error lists the unmatched keys and no file is modified.
func (s *Store) Set(updates map[string]string) error {
	if err := s.checkGuard("set"); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}
	next, remaining := applyUpdates(s.files, updates)
	if len(remaining) > 0 {
		sort.Strings(remaining)
		quoted := make([]string, len(remaining))
		for i, key := range remaining {
			quoted[i] = "'" + key + "'"
		}
		return services.Wrap(services.ErrConfiguration, "", "params",
			"could not match these parameters: "+strings.Join(quoted, " "), nil)
	}
	if err := s.writeAll(next); err != nil {
		return err
	}
	s.files = next
	return nil
}

// Reset restores every file from its template, substitutes the environment
// values into param_set1.ini, applies the system defaults file and writes all
// files.
func (s *Store) Reset() error {
	if err := s.checkGuard("reset"); err != nil {
		return err
	}
	fresh := make([]paramFile, 0, len(FileNames))
	for _, name := range FileNames {
		data, err := s.template(name)
		if err != nil {
			return fmt.Errorf("load template %s: %w", name, err)
		}
		fresh = append(fresh, paramFile{name: name, lines: splitLines(data)})
	}

	if len(s.environment) > 0 {
		for i := range fresh {
			if fresh[i].name != resetTarget {
				continue
			}
			updated, _ := applyUpdates(fresh[i:i+1], s.environment)
			fresh[i] = updated[0]
		}
	}

	if s.systemPath != "" {
		overrides, err := readAssignments(s.systemPath)
		if err != nil {
			return err
		}
		if len(overrides) > 0 {
			var remaining []string
			fresh, remaining = applyUpdates(fresh, overrides)
			if len(remaining) > 0 {
				sort.Strings(remaining)
				return services.Wrap(services.ErrConfiguration, "", "params",
					fmt.Sprintf("%s names unknown parameters: %s", s.systemPath, strings.Join(remaining, ", ")), nil)
			}
		}
	}

	if err := s.writeAll(fresh); err != nil {
		return err
	}
	s.files = fresh
	return nil
}

// Snapshot returns every key/value pair in file order.
func (s *Store) Snapshot() []Entry {
	var entries []Entry
	for _, file := range s.files {
		for _, line := range file.lines {
			if isComment(line) {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok || key == "" {
				continue
			}
			entries = append(entries, Entry{File: file.name, Key: key, Value: value})
		}
	}
	return entries
}

func (s *Store) checkGuard(operation string) error {
	if s.guard != nil && s.guard.Held() {
		return services.Wrap(services.ErrLockHeld, "", "params", operation+" refused while the system lock is held", nil)
	}
	return nil
}

func (s *Store) template(name string) ([]byte, error) {
	if s.templateFor != nil {
		if path := s.templateFor(name); path != "" {
			data, err := os.ReadFile(path)
			if err == nil {
				return data, nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}
	return defaultTemplates.ReadFile("defaults/" + name)
}

func (s *Store) writeAll(files []paramFile) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create parameter directory: %w", err)
	}
	// All files are staged before the first rename.
	staged := make([]string, 0, len(files))
	defer func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}()
	for _, file := range files {
		tmp, err := os.CreateTemp(s.dir, "."+file.name+".*")
		if err != nil {
			return fmt.Errorf("stage %s: %w", file.name, err)
		}
		staged = append(staged, tmp.Name())
		if _, err := tmp.WriteString(joinLines(file.lines)); err != nil {
			tmp.Close()
			return fmt.Errorf("write %s: %w", file.name, err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("close %s: %w", file.name, err)
		}
	}
	for i, file := range files {
		if err := os.Rename(staged[i], filepath.Join(s.dir, file.name)); err != nil {
			return fmt.Errorf("replace %s: %w", file.name, err)
		}
	}
	staged = staged[:0]
	return nil
}

// applyUpdates returns copies of files with matching lines replaced and the
// keys that matched no line.
func applyUpdates(files []paramFile, updates map[string]string) ([]paramFile, []string) {
	pending := make(map[string]string, len(updates))
	for key, value := range updates {
		pending[key] = value
	}
	out := make([]paramFile, len(files))
	for i, file := range files {
		lines := make([]string, len(file.lines))
		copy(lines, file.lines)
		for idx, line := range lines {
			if len(pending) == 0 {
				break
			}
			if isComment(line) {
				continue
			}
			key, _, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			if value, wanted := pending[key]; wanted {
				lines[idx] = key + "=" + value
				delete(pending, key)
			}
		}
		out[i] = paramFile{name: file.name, lines: lines}
	}
	remaining := make([]string, 0, len(pending))
	for key := range pending {
		remaining = append(remaining, key)
	}
	return out, remaining
}

func readAssignments(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	values := map[string]string{}
	for _, line := range splitLines(data) {
		if isComment(line) {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if ok && strings.TrimSpace(key) != "" {
			values[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return values, nil
}

func splitLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	return lines
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func isComment(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}
