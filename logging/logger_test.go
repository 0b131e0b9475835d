package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestComponentLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	cl := NewComponentLogger("committer", "1.2.3", Options{Level: "info", Format: "json", Output: &buf})

	cl.Debug().Msg("hidden")
	cl.LogCommit(CommitStats{Index: 7, Name: "2022-01-01T00_00_00Z.rcd", Mutations: 3, EventRows: 4, Duration: time.Millisecond})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1 (debug must be filtered)", len(lines))
	}

	var entry map[string]any
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatal(err)
	}
	if entry["component"] != "committer" || entry["version"] != "1.2.3" {
		t.Errorf("context fields = %v", entry)
	}
	if entry["index"] != float64(7) {
		t.Errorf("index = %v", entry["index"])
	}
	if entry["event_rows"] != float64(4) {
		t.Errorf("event_rows = %v", entry["event_rows"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"warn", "warn"},
		{"error", "error"},
		{"", "info"},
		{"verbose", "info"},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in).String(); got != tt.want {
			t.Errorf("parseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
