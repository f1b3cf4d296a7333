// Package config loads and persists user settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/downpour-dl/downpour/internal/engine/types"
)

// Settings holds all user-configurable settings organized by category.
type Settings struct {
	General   GeneralSettings  `yaml:"general"`
	Network   NetworkSettings  `yaml:"network"`
	Transfers TransferSettings `yaml:"transfers"`
}

// GeneralSettings contains application-wide behavior.
type GeneralSettings struct {
	// StorageRoot is the directory downloads land under.
	StorageRoot string `yaml:"storage_root"`
	// DataDir holds the history database and the instance lock.
	DataDir string `yaml:"data_dir"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// History toggles recording of terminal outcomes.
	History bool `yaml:"history"`
}

// NetworkSettings contains HTTP client parameters.
type NetworkSettings struct {
	// UserAgent overrides the default User-Agent header. Empty means default.
	UserAgent string `yaml:"user_agent"`
	// ProxyURL routes requests through an http, https, or socks5 proxy.
	// Empty means the environment's proxy settings apply.
	ProxyURL string `yaml:"proxy_url"`
	// SkipTLSVerification disables certificate checks.
	SkipTLSVerification bool `yaml:"skip_tls_verification"`
}

// TransferSettings contains download tuning.
type TransferSettings struct {
	// MaxConcurrent caps simultaneous transfers (1-10).
	MaxConcurrent int `yaml:"max_concurrent"`
	// BufferSize is the stream buffer in bytes. Cancellation latency is
	// bounded by one buffer read.
	BufferSize int `yaml:"buffer_size"`
	// DefaultPolicy applies when a submission names no creation policy:
	// overwrite, append, or createnew.
	DefaultPolicy string `yaml:"default_policy"`
}

// DefaultSettings returns a Settings instance with every field filled.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()

	return &Settings{
		General: GeneralSettings{
			StorageRoot: filepath.Join(homeDir, "Downloads"),
			DataDir:     downpourDir(),
			LogLevel:    "info",
			History:     true,
		},
		Network: NetworkSettings{
			UserAgent:           "", // empty means the built-in default
			ProxyURL:            "",
			SkipTLSVerification: false,
		},
		Transfers: TransferSettings{
			MaxConcurrent: types.DefaultMaxConcurrentDownloads,
			BufferSize:    types.ChunkSize,
			DefaultPolicy: "append",
		},
	}
}

func downpourDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".downpour")
}

// DefaultPath returns the standard settings file location.
func DefaultPath() string {
	return filepath.Join(downpourDir(), "settings.yaml")
}

// Load reads settings from path, or from DefaultPath when path is empty.
// A missing file yields defaults. A .env file in the working directory is
// loaded first, and ${VAR} references anywhere in the settings file expand
// against the environment before parsing.
func Load(path string) (*Settings, error) {
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	// Start from defaults so fields absent from the file keep their values.
	settings := DefaultSettings()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return settings, nil
}

// Save writes settings to path atomically, or to DefaultPath when path is
// empty.
func Save(s *Settings, path string) error {
	if path == "" {
		path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	// Write to a temp file, then rename.
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// HistoryPath returns the history database location under the data dir.
func (s *Settings) HistoryPath() string {
	return filepath.Join(s.General.DataDir, "history.db")
}

// ToRuntimeConfig converts user settings into the engine's runtime knobs.
func (s *Settings) ToRuntimeConfig() *types.RuntimeConfig {
	return &types.RuntimeConfig{
		UserAgent:           s.Network.UserAgent,
		ProxyURL:            s.Network.ProxyURL,
		SkipTLSVerification: s.Network.SkipTLSVerification,
		BufferSize:          s.Transfers.BufferSize,
	}
}
