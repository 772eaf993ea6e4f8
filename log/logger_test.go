package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("/work/project", Options{Level: "debug", Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.With(map[string]any{"module": "fib._lib"}).Info("test started", map[string]any{"test": "adds"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["message"] != "test started" {
		t.Errorf("message = %v, want %q", entry["message"], "test started")
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["project_root"] != "/work/project" {
		t.Errorf("project_root = %v", entry["project_root"])
	}
	if entry["module"] != "fib._lib" {
		t.Errorf("module = %v", entry["module"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["test"] != "adds" {
		t.Errorf("fields = %v", entry["fields"])
	}
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(".", Options{Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Info("hidden", nil)
	logger.Warn("shown", nil)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info entry should be filtered at default warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn entry should be written")
	}
}

func TestNewLogger_InvalidOptions(t *testing.T) {
	if _, err := NewLogger(".", Options{Level: "verbose"}); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := NewLogger(".", Options{Format: "xml"}); err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Error("discarded", map[string]any{"k": "v"})
	logger.Sugar().Infof("discarded %d", 1)
}
