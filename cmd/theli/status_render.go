package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"theli/internal/preflight"
)

type checkKind int

const (
	checkInfo checkKind = iota
	checkOK
	checkWarn
	checkError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const checkLabelWidth = 24

// kindOf maps a preflight result to its display kind: failed optional
// checks only warn.
func kindOf(r preflight.Result) checkKind {
	switch {
	case r.Passed:
		return checkOK
	case r.Optional:
		return checkWarn
	default:
		return checkError
	}
}

func renderCheckLine(label string, kind checkKind, message string, colorize bool) string {
	status := fmt.Sprintf("[%s]", checkKindLabel(kind))
	if message != "" {
		status += " " + message
	}
	line := fmt.Sprintf("  %-*s %s", checkLabelWidth, label+":", status)
	if colorize {
		if color := checkKindColor(kind); color != "" {
			return color + line + ansiReset
		}
	}
	return line
}

func checkKindLabel(kind checkKind) string {
	switch kind {
	case checkOK:
		return "OK"
	case checkWarn:
		return "WARN"
	case checkError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func checkKindColor(kind checkKind) string {
	switch kind {
	case checkOK:
		return ansiGreen
	case checkWarn:
		return ansiYellow
	case checkError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
