package sample_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rulegen-service/internal/sample"
)

func writeSample(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadLines_TrimsAndSkipsBlanks(t *testing.T) {
	dir := t.TempDir()
	path := writeSample(t, dir, "a.log", "  first line  \n\n\t\nsecond line\n   \nthird\n")

	lines, err := (&sample.Reader{}).ReadLines(path, 0)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	want := []string{"first line", "second line", "third"}
	if len(lines) != 3 || lines[0] != want[0] || lines[1] != want[1] || lines[2] != want[2] {
		t.Fatalf("expected %v, got %v", want, lines)
	}
}

func TestReadLines_CapsAtMaxLines(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, "line-%d\n", i)
	}
	path := writeSample(t, dir, "big.log", b.String())

	lines, err := (&sample.Reader{}).ReadLines(path, 10)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(lines) != 10 || lines[9] != "line-9" {
		t.Fatalf("expected first 10 lines, got %d: %v", len(lines), lines)
	}

	// Zero falls back to the default cap.
	lines, err = (&sample.Reader{}).ReadLines(path, 0)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(lines) != sample.DefaultMaxLines {
		t.Fatalf("expected %d lines, got %d", sample.DefaultMaxLines, len(lines))
	}
}

func TestReadLines_MissingFile(t *testing.T) {
	_, err := (&sample.Reader{}).ReadLines(filepath.Join(t.TempDir(), "nope.log"), 0)
	if !errors.Is(err, sample.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReadLines_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"empty.log":  "",
		"blanks.log": "\n   \n\t\n",
	} {
		path := writeSample(t, dir, name, content)
		if _, err := (&sample.Reader{}).ReadLines(path, 0); !errors.Is(err, sample.ErrEmpty) {
			t.Fatalf("%s: expected ErrEmpty, got %v", name, err)
		}
	}
}

func TestReadLines_ConfinedToBaseDir(t *testing.T) {
	base := t.TempDir()
	outside := t.TempDir()
	inside := writeSample(t, base, "in.log", "ok\n")
	escaped := writeSample(t, outside, "out.log", "secret\n")

	r := &sample.Reader{BaseDir: base}

	if _, err := r.ReadLines(inside, 0); err != nil {
		t.Fatalf("expected read inside base dir to work, got %v", err)
	}
	if _, err := r.ReadLines(escaped, 0); !errors.Is(err, sample.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for path outside base dir, got %v", err)
	}
	traversal := filepath.Join(base, "..", filepath.Base(outside), "out.log")
	if _, err := r.ReadLines(traversal, 0); !errors.Is(err, sample.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for traversal path, got %v", err)
	}
}
