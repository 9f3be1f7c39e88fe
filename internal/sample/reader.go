// Package sample reads stored log samples for the generation pipeline.
package sample

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound = errors.New("log file not found")
	ErrEmpty    = errors.New("log file is empty or contains no valid lines")
)

// DefaultMaxLines caps how much of a sample feeds the generation prompt.
const DefaultMaxLines = 50

type Reader struct {
	// BaseDir, when set, confines reads to files under this directory.
	BaseDir string
}

// ReadLines returns up to maxLines trimmed, non-blank lines from the file.
// maxLines <= 0 means DefaultMaxLines.
func (r *Reader) ReadLines(path string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}

	if r.BaseDir != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve path: %w", err)
		}
		base, err := filepath.Abs(r.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("resolve base dir: %w", err)
		}
		if abs != base && !strings.HasPrefix(abs, base+string(filepath.Separator)) {
			return nil, fmt.Errorf("%w: outside allowed directory", ErrNotFound)
		}
		path = abs
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() && len(lines) < maxLines {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmpty
	}
	return lines, nil
}
