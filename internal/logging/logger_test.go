package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(Options{Level: "warn"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.Warn("shown", zap.String("k", "v"))
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("output = %q", out)
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNew_FileSinkIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examd.log")
	log, err := newLogger(Options{File: path}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	log.Info("attempt started", zap.String("attempt_id", "a1"))
	_ = log.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &rec); err != nil {
		t.Fatalf("not json: %q", b)
	}
	if rec["msg"] != "attempt started" || rec["attempt_id"] != "a1" {
		t.Fatalf("record = %v", rec)
	}
}
