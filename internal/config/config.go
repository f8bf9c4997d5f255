// Package config loads the filevault TOML configuration and resolves it
// through the defaults -> file -> environment -> CLI override chain.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the top-level configuration. Each TOML table maps onto one
// section struct.
type Config struct {
	API     APIConfig     `toml:"api"`
	Network NetworkConfig `toml:"network"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
	UI      UIConfig      `toml:"ui"`
}

// APIConfig selects which server the client talks to.
type APIConfig struct {
	// BaseURL bypasses platform resolution when set.
	BaseURL       string `toml:"base_url"`
	Platform      string `toml:"platform"`
	Device        string `toml:"device"`
	Mode          string `toml:"mode"`
	ProductionURL string `toml:"production_url"`
	DevHost       string `toml:"dev_host"`
	DevPort       int    `toml:"dev_port"`
	DevScheme     string `toml:"dev_scheme"`
}

// NetworkConfig controls the request pipeline's HTTP behavior.
type NetworkConfig struct {
	RequestTimeout       string `toml:"request_timeout"`
	UploadTimeout        string `toml:"upload_timeout"`
	ProbeTimeout         string `toml:"probe_timeout"`
	MaxRetries           int    `toml:"max_retries"`
	UserAgent            string `toml:"user_agent"`
	UploadBandwidthLimit string `toml:"upload_bandwidth_limit"`
}

// StorageConfig selects the credential store backend.
type StorageConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// UIConfig holds presentation preferences.
type UIConfig struct {
	Theme string `toml:"theme"`
}

// RequestTimeoutDuration returns the parsed request timeout. Values are
// checked by Validate, so a parse failure falls back to the default.
func (n *NetworkConfig) RequestTimeoutDuration() time.Duration {
	return durationOr(n.RequestTimeout, defaultRequestTimeout)
}

// UploadTimeoutDuration returns the parsed upload timeout.
func (n *NetworkConfig) UploadTimeoutDuration() time.Duration {
	return durationOr(n.UploadTimeout, defaultUploadTimeout)
}

// ProbeTimeoutDuration returns the parsed connectivity probe timeout.
func (n *NetworkConfig) ProbeTimeoutDuration() time.Duration {
	return durationOr(n.ProbeTimeout, defaultProbeTimeout)
}

func durationOr(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}

	d, _ := time.ParseDuration(fallback) //nolint:errcheck // constants are valid durations

	return d
}

// ResolvedPath returns where the backend keeps its data. An empty Path
// selects a per-backend default under the data directory. For the keyring
// backend the result is the service name.
func (s *StorageConfig) ResolvedPath() string {
	if s.Path != "" {
		return expandTilde(s.Path)
	}

	return DefaultCredentialsPath(s.Backend)
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}
