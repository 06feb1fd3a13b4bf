package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"nonsense", LevelInfo},
		{"", LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLevelString(t *testing.T) {
	if LevelDebug.String() != "DEBUG" || LevelError.String() != "ERROR" {
		t.Error("level names do not round-trip")
	}
}

func TestFileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelDebug,
		Service: "concierge-test",
		LogDir:  dir,
		Quiet:   true,
	})

	logger.Info("session started", "session_id", "s-1", "tenant_id", "acme")
	logger.Debug("tool call dispatched", "strategy", "search_content")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	wantName := "concierge-test_" + time.Now().UTC().Format("2006-01-02") + ".log"
	raw, err := os.ReadFile(filepath.Join(dir, wantName))
	if err != nil {
		t.Fatalf("expected log file %s: %v", wantName, err)
	}

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("file log line is not JSON: %v", err)
	}
	if entry["service"] != "concierge-test" {
		t.Errorf("expected service attribute on every entry, got %v", entry["service"])
	}
	if entry["session_id"] != "s-1" {
		t.Errorf("expected session_id attribute, got %v", entry["session_id"])
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelWarn,
		Service: "filter-test",
		LogDir:  dir,
		Quiet:   true,
	})

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	logger.Close()

	name := "filter-test_" + time.Now().UTC().Format("2006-01-02") + ".log"
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	content := strings.TrimSpace(string(raw))
	if strings.Count(content, "\n")+1 != 1 {
		t.Errorf("expected exactly one entry above the threshold, got: %s", content)
	}
	if !strings.Contains(content, "kept") {
		t.Error("warn entry missing from file")
	}
}

func TestCloseWithoutFile(t *testing.T) {
	logger := Default()
	if err := logger.Close(); err != nil {
		t.Errorf("Close on a file-less logger returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}
}

func TestWithCarriesAttributes(t *testing.T) {
	dir := t.TempDir()
	base := New(Config{Service: "with-test", LogDir: dir, Quiet: true})
	child := base.With("tenant_id", "acme")
	child.Info("hello")
	base.Close()

	name := "with-test_" + time.Now().UTC().Format("2006-01-02") + ".log"
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(raw), `"tenant_id":"acme"`) {
		t.Errorf("expected With attribute in output, got %s", raw)
	}
}
