package cmd

import (
	"context"
	"net/http"
	"testing"

	"github.com/downpour-dl/downpour/internal/testutil"
)

func TestBuildRequestDerivesFromURL(t *testing.T) {
	req, err := buildRequest("https://files.example.com/weights/pkg.bin", getFlags{})
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}

	if req.Name != "pkg" {
		t.Errorf("name = %q, want pkg", req.Name)
	}
	if req.Extension != "bin" {
		t.Errorf("extension = %q, want bin", req.Extension)
	}
	if req.Directory != "files.example.com" {
		t.Errorf("directory = %q, want the URL host", req.Directory)
	}
	if req.LogicalKey() != "pkg.bin" {
		t.Errorf("logical key = %q", req.LogicalKey())
	}
}

func TestBuildRequestFlagsWin(t *testing.T) {
	f := getFlags{
		name:      "weights",
		extension: "safetensors",
		dir:       "models",
		version:   "v2",
		token:     "secret",
		total:     4096,
	}
	req, err := buildRequest("https://example.com/dl?id=9", f)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}

	if req.Name != "weights" || req.Extension != "safetensors" {
		t.Errorf("name.ext = %s.%s", req.Name, req.Extension)
	}
	if req.Directory != "models" || req.Version != "v2" {
		t.Errorf("dir/version = %s/%s", req.Directory, req.Version)
	}
	if req.AccessToken != "secret" || req.TotalBytes != 4096 {
		t.Errorf("token/total = %q/%d", req.AccessToken, req.TotalBytes)
	}
}

func TestBuildRequestRejectsBareURL(t *testing.T) {
	// No file name in the path and no flags to supply one.
	if _, err := buildRequest("https://example.com/", getFlags{}); err == nil {
		t.Fatal("buildRequest accepted a URL with no derivable name")
	}
}

func TestBuildRequestRejectsMissingExtension(t *testing.T) {
	if _, err := buildRequest("https://example.com/download", getFlags{name: "file"}); err == nil {
		t.Fatal("buildRequest accepted a request with no extension")
	}
}

func TestProbeRequestNamesFileFromDisposition(t *testing.T) {
	body := testutil.PatternBytes(64)
	m := testutil.NewMockServerT(t, testutil.WithHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="weights.safetensors"`)
		w.Header().Set("Content-Length", "64")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))
	if m == nil {
		return
	}

	// The URL path alone names nothing; the probe has to.
	req, err := probeRequest(context.Background(), m.URL()+"/dl?id=9", getFlags{}, nil, nil)
	if err != nil {
		t.Fatalf("probeRequest: %v", err)
	}

	if req.Name != "weights" || req.Extension != "safetensors" {
		t.Errorf("name.ext = %s.%s, want weights.safetensors", req.Name, req.Extension)
	}
	if req.TotalBytes != 64 {
		t.Errorf("total = %d, want the probed size 64", req.TotalBytes)
	}
}

func TestProbeRequestKeepsFlagValues(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="origin.bin"`)
		w.WriteHeader(http.StatusOK)
	}))
	if m == nil {
		return
	}

	f := getFlags{name: "chosen", total: 100}
	req, err := probeRequest(context.Background(), m.URL()+"/dl", f, nil, nil)
	if err != nil {
		t.Fatalf("probeRequest: %v", err)
	}

	if req.Name != "chosen" {
		t.Errorf("name = %q, the flag should win over the probe", req.Name)
	}
	if req.Extension != "bin" {
		t.Errorf("extension = %q, want bin from the probe", req.Extension)
	}
	if req.TotalBytes != 100 {
		t.Errorf("total = %d, the flag should win over the probe", req.TotalBytes)
	}
}

func TestProbeRequestSurfacesOriginError(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithStatus(http.StatusNotFound))
	if m == nil {
		return
	}

	if _, err := probeRequest(context.Background(), m.URL()+"/dl", getFlags{}, nil, nil); err == nil {
		t.Fatal("probeRequest succeeded against a 404 origin")
	}
}
