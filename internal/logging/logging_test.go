package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_StructuredEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", true, &buf)
	log.Info().Str("k", "v").Msg("hello")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if decoded["k"] != "v" {
		t.Errorf("decoded[%q] = %v, want %q", "k", decoded["k"], "v")
	}
}

func TestNew_UnstructuredEmitsConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", false, &buf)
	log.Info().Msg("hello")

	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("expected non-JSON console output, got %q", buf.String())
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New("error", true, &buf)
	log.Info().Msg("should be filtered")

	if buf.Len() != 0 {
		t.Errorf("expected info log to be filtered at error level, got %q", buf.String())
	}
}

func TestEvent_IncludesEventNameAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", true, &buf)
	Event(log, "worker_launched", map[string]any{"worker_name": "orchestrated-abc"})

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if decoded["event"] != "worker_launched" {
		t.Errorf("decoded[event] = %v", decoded["event"])
	}
	if decoded["worker_name"] != "orchestrated-abc" {
		t.Errorf("decoded[worker_name] = %v", decoded["worker_name"])
	}
}
