package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Progs is the resolved content of the THELI progs.ini shell file. Entries with
// a P_ prefix name binaries, S_ entries name scripts, everything else is a
// directory.
type Progs struct {
	Dirs    map[string]string
	Tools   map[string]string
	Scripts map[string]string
}

// LoadProgs reads and resolves a progs.ini file. home replaces ~ in values.
func LoadProgs(path, home string) (*Progs, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	progs, err := ParseProgs(file, home)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return progs, nil
}

// ParseProgs resolves shell variable assignments in progs.ini format. Lines
// mentioning USE_X, conditionals, empty values and LANG are ignored; ${VAR}
// references are substituted until none remain.
func ParseProgs(r io.Reader, home string) (*Progs, error) {
	raw := map[string]string{}
	var order []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.Contains(line, "=") || strings.Contains(line, "USE_X") || strings.HasPrefix(line, "if") || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export"))
		line, _, _ = strings.Cut(line, ";")
		name, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if name == "" || value == "" || name == "LANG" {
			continue
		}
		if _, seen := raw[name]; !seen {
			order = append(order, name)
		}
		raw[name] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	resolver := progsResolver{raw: raw, home: home, done: map[string]string{}, active: map[string]bool{}}
	progs := &Progs{Dirs: map[string]string{}, Tools: map[string]string{}, Scripts: map[string]string{}}
	for _, name := range order {
		value, err := resolver.resolve(name)
		if err != nil {
			return nil, err
		}
		switch {
		case strings.HasPrefix(name, "P_"):
			progs.Tools[name] = value
		case strings.HasPrefix(name, "S_"):
			progs.Scripts[name] = value
		default:
			progs.Dirs[name] = value
		}
	}
	return progs, nil
}

// Dir returns a resolved directory entry.
func (p *Progs) Dir(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	value, ok := p.Dirs[name]
	return value, ok
}

type progsResolver struct {
	raw    map[string]string
	home   string
	done   map[string]string
	active map[string]bool
}

func (r *progsResolver) resolve(name string) (string, error) {
	if value, ok := r.done[name]; ok {
		return value, nil
	}
	value, ok := r.raw[name]
	if !ok {
		if name == "HOME" && r.home != "" {
			return r.home, nil
		}
		return os.Getenv(name), nil
	}
	if r.active[name] {
		return "", fmt.Errorf("progs.ini variable %s refers to itself", name)
	}
	r.active[name] = true
	defer delete(r.active, name)

	if r.home != "" {
		value = strings.ReplaceAll(value, "~", r.home)
	}
	var resolveErr error
	value = os.Expand(value, func(ref string) string {
		resolved, err := r.resolve(ref)
		if err != nil && resolveErr == nil {
			resolveErr = err
		}
		return resolved
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	value = filepath.Clean(value)
	r.done[name] = value
	return value, nil
}
