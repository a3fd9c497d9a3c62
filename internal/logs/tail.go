package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// TailOptions selects what Tail reads. A negative Offset returns the last
// Limit lines; otherwise reading starts at the byte Offset.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

// TailResult holds the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads a log file. A missing file yields no lines and offset 0.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	wait := max(opts.Wait, 0)

	if opts.Offset < 0 {
		lines, offset, err := lastLines(path, opts.Limit)
		if err != nil {
			return result, err
		}
		result = TailResult{Lines: lines, Offset: offset}
		if opts.Follow && wait > 0 && len(lines) == 0 {
			return waitForLines(ctx, path, offset, wait)
		}
		return result, nil
	}

	offset := opts.Offset
	if offset > info.Size() {
		offset = info.Size()
	}
	lines, next, err := readForward(path, offset)
	if err != nil {
		return result, err
	}
	if opts.Follow && wait > 0 && len(lines) == 0 {
		return waitForLines(ctx, path, next, wait)
	}
	return TailResult{Lines: lines, Offset: next}, nil
}

// Excerpt is a numbered range of log lines.
type Excerpt struct {
	// First is the 1-based number of Lines[0].
	First int
	Lines []string
}

// Around returns up to before lines ahead of line and after lines following
// it, line included. Line numbers are 1-based.
func Around(path string, line, before, after int) (Excerpt, error) {
	if line < 1 {
		return Excerpt{}, fmt.Errorf("line %d out of range", line)
	}
	file, err := os.Open(path)
	if err != nil {
		return Excerpt{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	first := max(1, line-max(before, 0))
	last := line + max(after, 0)
	excerpt := Excerpt{First: first}
	scanner := newScanner(file)
	for n := 1; scanner.Scan(); n++ {
		if n < first {
			continue
		}
		if n > last {
			break
		}
		excerpt.Lines = append(excerpt.Lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Excerpt{}, fmt.Errorf("read log file: %w", err)
	}
	if len(excerpt.Lines) == 0 {
		return Excerpt{}, fmt.Errorf("line %d out of range", line)
	}
	return excerpt, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}

func lastLines(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var ring []string
	if limit > 0 {
		ring = make([]string, 0, limit)
		scanner := newScanner(file)
		for scanner.Scan() {
			if len(ring) == limit {
				ring = append(ring[1:], scanner.Text())
				continue
			}
			ring = append(ring, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, 0, fmt.Errorf("read log file: %w", err)
		}
	}
	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}
	return ring, offset, nil
}

func readForward(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	scanner := newScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	next, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}
	return lines, next, nil
}

// waitForLines polls until new lines arrive, wait elapses or ctx ends.
func waitForLines(ctx context.Context, path string, offset int64, wait time.Duration) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		lines, next, err := readForward(path, offset)
		if err != nil {
			return TailResult{Offset: offset}, err
		}
		if len(lines) > 0 || time.Now().After(deadline) {
			return TailResult{Lines: lines, Offset: next}, nil
		}
		select {
		case <-ctx.Done():
			return TailResult{Offset: next}, ctx.Err()
		case <-ticker.C:
		}
	}
}
