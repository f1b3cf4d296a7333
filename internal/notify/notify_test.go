package notify

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/downpour-dl/downpour/internal/logging"
)

func TestLogNotifierInitIdempotent(t *testing.T) {
	n := NewLogNotifier(nil)
	for i := 0; i < 3; i++ {
		if err := n.Init(); err != nil {
			t.Fatalf("Init call %d: %v", i, err)
		}
	}
}

func TestLogNotifierEmitsStructuredNotices(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logging.NewWithWriter("info", &buf))

	n.Progress(42, "pkg.bin")
	n.Done("pkg.bin", true)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2", len(lines))
	}

	var tick struct {
		Message string `json:"message"`
		Percent int    `json:"percent"`
		File    string `json:"file"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &tick); err != nil {
		t.Fatalf("unmarshal progress line: %v", err)
	}
	if tick.Message != "downloading" || tick.Percent != 42 || tick.File != "pkg.bin" {
		t.Errorf("progress line = %+v", tick)
	}

	var done struct {
		Message string `json:"message"`
		File    string `json:"file"`
		Success bool   `json:"success"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &done); err != nil {
		t.Fatalf("unmarshal done line: %v", err)
	}
	if done.Message != "download finished" || !done.Success || done.File != "pkg.bin" {
		t.Errorf("done line = %+v", done)
	}
}
