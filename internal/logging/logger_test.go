package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNew_TagsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "warn", App: "consent-api", Env: "test", Output: &buf})

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	logger.Warn("kept")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["msg"] != "kept" || line["app"] != "consent-api" || line["env"] != "test" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestNew_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "verbose", Output: &buf})
	logger.Debug("dropped")
	logger.Info("kept")
	if bytes.Count(buf.Bytes(), []byte("\n")) != 1 {
		t.Fatalf("expected exactly one line, got %q", buf.String())
	}
}
