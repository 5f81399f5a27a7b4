package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLogFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(data)
}

func TestNew_WritesToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(path, LevelDebug, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Info("hello %s", "world")

	content := readLogFile(t, path)
	if !strings.Contains(content, "[INFO] hello world") {
		t.Fatalf("expected log file to contain the formatted message, got %q", content)
	}
}

func TestNew_MissingDirectoryReturnsError(t *testing.T) {
	t.Parallel()

	_, err := New(filepath.Join(t.TempDir(), "missing-dir", "app.log"), LevelInfo, false)
	if err == nil {
		t.Fatal("expected an error opening a log file in a nonexistent directory")
	}
}

func TestLogger_LevelFiltersLowerSeverityMessages(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(path, LevelWarn, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Debug("should not appear")
	l.Info("should not appear either")
	l.Warn("this should appear")

	content := readLogFile(t, path)
	if strings.Contains(content, "should not appear") {
		t.Fatalf("expected debug/info messages to be filtered out, got %q", content)
	}
	if !strings.Contains(content, "this should appear") {
		t.Fatalf("expected the warn message to be logged, got %q", content)
	}
}

func TestDiscard_SwallowsAllLevelsWithoutError(t *testing.T) {
	t.Parallel()

	l := Discard()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]Level{
		"debug": LevelDebug,
		"DEBUG": LevelDebug,
		"warn":  LevelWarn,
		"error": LevelError,
		"info":  LevelInfo,
		"":      LevelInfo,
		"bogus": LevelInfo,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestLogger_Write_TrimsAndSkipsBlankLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(path, LevelDebug, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n, err := l.Write([]byte("  wrapped message  \n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len("  wrapped message  \n") {
		t.Fatalf("expected Write to report the full input length, got %d", n)
	}

	n, err = l.Write([]byte("   \n"))
	if err != nil {
		t.Fatalf("Write (blank): %v", err)
	}
	if n != len("   \n") {
		t.Fatalf("expected Write to report the full input length for blank input, got %d", n)
	}

	content := readLogFile(t, path)
	if !strings.Contains(content, "wrapped message") {
		t.Fatalf("expected the trimmed message to be logged, got %q", content)
	}
}
