package engine

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/downpour-dl/downpour/internal/testutil"
)

func TestProbeRangeOrigin(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithSize(2048))

	res, err := newTestTransfer().Probe(context.Background(), m.URL()+"/models/pkg.bin", "")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !res.AcceptsRanges {
		t.Error("AcceptsRanges = false, want true")
	}
	if res.Size != 2048 {
		t.Errorf("Size = %d, want 2048", res.Size)
	}
	if res.Filename != "pkg.bin" {
		t.Errorf("Filename = %q, want pkg.bin", res.Filename)
	}
}

func TestProbePlainOrigin(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithSize(512), testutil.WithRangeSupport(false))

	res, err := newTestTransfer().Probe(context.Background(), m.URL(), "")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.AcceptsRanges {
		t.Error("AcceptsRanges = true, want false")
	}
	if res.Size != 512 {
		t.Errorf("Size = %d, want 512", res.Size)
	}
}

func TestProbeErrorStatus(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithStatus(http.StatusNotFound))

	_, err := newTestTransfer().Probe(context.Background(), m.URL(), "")
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
	if perr.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", perr.Status)
	}
}

func TestProbeContentDisposition(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="weights.safetensors"`)
		w.Header().Set("Content-Length", "10")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(make([]byte, 10))
	}))

	res, err := newTestTransfer().Probe(context.Background(), m.URL()+"/blob/1234", "")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.Filename != "weights.safetensors" {
		t.Errorf("Filename = %q, want weights.safetensors", res.Filename)
	}
}

func TestProbeForwardsToken(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithSize(100), testutil.WithAuthToken("sekret"))

	_, err := newTestTransfer().Probe(context.Background(), m.URL(), "")
	var perr *ProtocolError
	if !errors.As(err, &perr) || perr.Status != http.StatusUnauthorized {
		t.Fatalf("tokenless probe = %v, want ProtocolError 401", err)
	}

	res, err := newTestTransfer().Probe(context.Background(), m.URL(), "sekret")
	if err != nil {
		t.Fatalf("authorized probe: %v", err)
	}
	if res.Size != 100 {
		t.Errorf("Size = %d, want 100", res.Size)
	}
}
