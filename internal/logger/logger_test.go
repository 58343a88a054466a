package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	if _, err := New(cfg); err == nil {
		t.Error("expected an error for an invalid level")
	}

	cfg = DefaultConfig()
	cfg.Format = "yaml"
	if _, err := New(cfg); err == nil {
		t.Error("expected an error for an invalid format")
	}

	cfg = DefaultConfig()
	cfg.File.Enabled = true
	cfg.File.Path = ""
	if _, err := New(cfg); err == nil {
		t.Error("expected an error for file logging without a path")
	}
}

func TestFileSink_WritesJSONEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	cfg := DefaultConfig()
	cfg.Console.Enabled = false
	cfg.File.Enabled = true
	cfg.File.Path = path

	log, err := New(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	log.WithComponent(ComponentQueue).Info("job enqueued", "job_id", "j-1")
	if err := log.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry.Message != "job enqueued" {
		t.Errorf("expected message %q, got %q", "job enqueued", entry.Message)
	}
	if entry.Component != ComponentQueue {
		t.Errorf("expected component queue, got %s", entry.Component)
	}
	if entry.Fields["job_id"] != "j-1" {
		t.Errorf("expected job_id field, got %v", entry.Fields)
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	cfg := DefaultConfig()
	cfg.Level = LevelWarn
	cfg.Console.Enabled = false
	cfg.File.Enabled = true
	cfg.File.Path = path

	log, err := New(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	log.Debug("dropped")
	log.Info("dropped too")
	log.Warn("kept")
	if err := log.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "kept") {
		t.Errorf("expected the warn line, got %s", lines[0])
	}
}

func TestWithFields_DoesNotMutateParent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Console.Enabled = false

	log, err := New(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	child := log.WithFields(map[string]any{"a": 1})
	if len(log.baseFields) != 0 {
		t.Error("parent logger fields were mutated")
	}
	grandchild := child.WithFields(map[string]any{"b": 2})
	gc := grandchild.(*MultiLogger)
	if gc.baseFields["a"] != 1 || gc.baseFields["b"] != 2 {
		t.Errorf("expected merged fields, got %v", gc.baseFields)
	}
}

func TestDefault_NoOpByDefault(t *testing.T) {
	if _, ok := Default().(*NoOpLogger); !ok {
		t.Error("expected the default logger to be a no-op")
	}
}
