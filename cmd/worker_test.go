package cmd

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/downpour-dl/downpour/internal/config"
	"github.com/downpour-dl/downpour/internal/testutil"
	"github.com/downpour-dl/downpour/internal/worker"
)

// writeTestSettings points every path-like setting at temp directories so
// the command leaves the host machine alone.
func writeTestSettings(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	s := config.DefaultSettings()
	s.General.StorageRoot = filepath.Join(dir, "files")
	s.General.DataDir = filepath.Join(dir, "data")
	s.General.LogLevel = "error"
	cfg := filepath.Join(dir, "settings.yaml")
	if err := config.Save(s, cfg); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	return cfg
}

func TestWorkerCommandRoundTrip(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithSize(600))
	cfg := writeTestSettings(t)

	wire, err := worker.EncodePayload(worker.Payload{
		URL:       m.URL(),
		Name:      "pkg",
		Extension: "bin",
		Directory: "models",
	})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	in := &bytes.Buffer{}
	if err := worker.WriteFrame(in, worker.FramePayload, wire); err != nil {
		t.Fatalf("write payload frame: %v", err)
	}

	out := &bytes.Buffer{}
	rootCmd.SetArgs([]string{"--config", cfg, "worker"})
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("worker command: %v", err)
	}

	var last worker.Frame
	for {
		f, err := worker.ReadFrame(out)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		last = f
	}
	if last.Kind != worker.FrameOutcome {
		t.Fatalf("last frame kind = %q, want %q", last.Kind, worker.FrameOutcome)
	}

	outcome, err := worker.DecodeOutcome(last.Body)
	if err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if outcome.Status != worker.StatusSucceeded {
		t.Fatalf("status = %q (%s), want succeeded", outcome.Status, outcome.Message)
	}
	if outcome.Received != 600 {
		t.Errorf("received = %d, want 600", outcome.Received)
	}

	got, err := os.ReadFile(outcome.Path)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !bytes.Equal(got, m.Body()) {
		t.Error("file differs from served body")
	}
}
