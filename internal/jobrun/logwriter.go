package jobrun

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var bannerRule = strings.Repeat("##", 32)

// LogWriter persists captured output as <dir>/<name>.log and points the
// latest-log symlink at the newest file.
type LogWriter struct {
	dir    string
	latest string
}

// NewLogWriter returns a writer for the logs directory and latest-log link.
func NewLogWriter(dir, latest string) *LogWriter {
	return &LogWriter{dir: dir, latest: latest}
}

// Path returns the log file used for name.
func (w *LogWriter) Path(name string) string {
	return filepath.Join(w.dir, name+".log")
}

// Write replaces the log for name with the banner followed by lines and
// returns the log path.
func (w *LogWriter) Write(name string, lines []string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}
	path := w.Path(name)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create log: %w", err)
	}
	buf := bufio.NewWriter(file)
	buf.WriteString(Banner(name))
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := buf.Flush(); err != nil {
		file.Close()
		return "", fmt.Errorf("write log: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close log: %w", err)
	}
	if w.latest != "" {
		if err := os.Remove(w.latest); err != nil && !os.IsNotExist(err) {
			return path, fmt.Errorf("replace latest log link: %w", err)
		}
		if err := os.Symlink(path, w.latest); err != nil {
			return path, fmt.Errorf("link latest log: %w", err)
		}
	}
	return path, nil
}

// BannerLines is the number of lines Banner adds ahead of the output, so
// output line n is line n+BannerLines of the log file.
const BannerLines = 4

// Banner returns the header written on top of every log.
func Banner(name string) string {
	var b strings.Builder
	b.WriteString(bannerRule)
	b.WriteString("\n##")
	b.WriteString(name + ".sh")
	b.WriteString("##\n")
	b.WriteString(bannerRule)
	b.WriteString("\n\n")
	return b.String()
}
