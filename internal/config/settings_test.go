package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/downpour-dl/downpour/internal/engine/types"
)

func TestDefaultSettings(t *testing.T) {
	settings := DefaultSettings()

	if settings == nil {
		t.Fatal("DefaultSettings returned nil")
	}

	t.Run("General", func(t *testing.T) {
		if settings.General.StorageRoot == "" {
			t.Error("storage root should not be empty")
		}
		if !strings.Contains(strings.ToLower(settings.General.StorageRoot), "downloads") {
			t.Errorf("storage root should contain 'Downloads', got: %s", settings.General.StorageRoot)
		}
		if settings.General.DataDir == "" {
			t.Error("data dir should not be empty")
		}
		if settings.General.LogLevel != "info" {
			t.Errorf("log level should default to info, got: %s", settings.General.LogLevel)
		}
		if !settings.General.History {
			t.Error("history should be enabled by default")
		}
	})

	t.Run("Transfers", func(t *testing.T) {
		if settings.Transfers.MaxConcurrent <= 0 || settings.Transfers.MaxConcurrent > 10 {
			t.Errorf("MaxConcurrent should be in 1-10, got: %d", settings.Transfers.MaxConcurrent)
		}
		if settings.Transfers.BufferSize <= 0 {
			t.Errorf("BufferSize should be positive, got: %d", settings.Transfers.BufferSize)
		}
		if _, err := types.ParsePolicy(settings.Transfers.DefaultPolicy); err != nil {
			t.Errorf("default policy %q does not parse: %v", settings.Transfers.DefaultPolicy, err)
		}
	})
}

func TestDefaultSettingsConsistency(t *testing.T) {
	s1 := DefaultSettings()
	s2 := DefaultSettings()

	if s1 == s2 {
		t.Error("DefaultSettings should return a new instance each time")
	}
	if s1.Transfers.MaxConcurrent != s2.Transfers.MaxConcurrent {
		t.Error("default settings should be consistent across calls")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Transfers.MaxConcurrent != DefaultSettings().Transfers.MaxConcurrent {
		t.Error("missing file should yield defaults")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	settings := DefaultSettings()
	settings.General.StorageRoot = "/srv/models"
	settings.Network.UserAgent = "downpour-test/9"
	settings.Transfers.MaxConcurrent = 7

	if err := Save(settings, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.General.StorageRoot != "/srv/models" {
		t.Errorf("storage root = %q", loaded.General.StorageRoot)
	}
	if loaded.Network.UserAgent != "downpour-test/9" {
		t.Errorf("user agent = %q", loaded.Network.UserAgent)
	}
	if loaded.Transfers.MaxConcurrent != 7 {
		t.Errorf("max concurrent = %d", loaded.Transfers.MaxConcurrent)
	}
}

func TestLoadFillsMissingFieldsFromDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	partial := "general:\n  storage_root: /srv/models\n"
	if err := os.WriteFile(path, []byte(partial), 0o644); err != nil {
		t.Fatal(err)
	}

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.General.StorageRoot != "/srv/models" {
		t.Errorf("storage root = %q", settings.General.StorageRoot)
	}
	if settings.Transfers.MaxConcurrent != DefaultSettings().Transfers.MaxConcurrent {
		t.Error("fields absent from the file should keep their defaults")
	}
	if settings.Transfers.BufferSize != types.ChunkSize {
		t.Errorf("buffer size = %d", settings.Transfers.BufferSize)
	}
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	t.Setenv("DOWNPOUR_TEST_ROOT", "/data/weights")

	path := filepath.Join(t.TempDir(), "settings.yaml")
	body := "general:\n  storage_root: ${DOWNPOUR_TEST_ROOT}\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.General.StorageRoot != "/data/weights" {
		t.Errorf("storage root = %q, want env expansion", settings.General.StorageRoot)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("general: [not a mapping"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted malformed YAML")
	}
}

func TestToRuntimeConfig(t *testing.T) {
	settings := DefaultSettings()
	settings.Network.UserAgent = "agent/1"
	settings.Network.ProxyURL = "socks5://127.0.0.1:1080"
	settings.Network.SkipTLSVerification = true
	settings.Transfers.BufferSize = 64 * types.KB

	rc := settings.ToRuntimeConfig()
	if rc.GetUserAgent() != "agent/1" {
		t.Errorf("user agent = %q", rc.GetUserAgent())
	}
	if rc.GetProxyURL() != "socks5://127.0.0.1:1080" {
		t.Errorf("proxy = %q", rc.GetProxyURL())
	}
	if !rc.GetSkipTLSVerification() {
		t.Error("TLS skip lost in conversion")
	}
	if rc.GetBufferSize() != 64*types.KB {
		t.Errorf("buffer size = %d", rc.GetBufferSize())
	}
}

func TestHistoryPath(t *testing.T) {
	settings := DefaultSettings()
	settings.General.DataDir = "/var/lib/downpour"

	if got := settings.HistoryPath(); got != filepath.Join("/var/lib/downpour", "history.db") {
		t.Errorf("history path = %q", got)
	}
}
