package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown", "book", "Genesis")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info message logged at warn level:\n%s", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "book=Genesis") {
		t.Fatalf("unexpected text output:\n%s", out)
	}

	buf.Reset()
	newLogger(&buf, "bogus", "text").Debug("debug")
	if buf.Len() != 0 {
		t.Fatalf("unknown level should default to info")
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "debug", "JSON").Debug("chapter", "n", 1)
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "chapter" || rec["level"] != "DEBUG" {
		t.Fatalf("unexpected record: %v", rec)
	}
}
