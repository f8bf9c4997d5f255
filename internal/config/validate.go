package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Validation range constants.
const (
	minPort           = 1
	maxPort           = 65535
	maxRetriesLimit   = 10
	minRequestTimeout = 1 * time.Second
	minUploadTimeout  = 5 * time.Second
	minProbeTimeout   = 100 * time.Millisecond
)

var (
	validPlatforms  = setOf("android", "ios", "web", "desktop")
	validDevices    = setOf("emulator", "physical")
	validModes      = setOf("development", "release")
	validSchemes    = setOf("http", "https")
	validBackends   = setOf(BackendFile, BackendKeyring, BackendSQLite, BackendMemory)
	validLogLevels  = setOf("debug", "info", "warn", "error")
	validLogFormats = setOf("auto", "text", "json")
	validThemes     = setOf("light", "dark", "system")
)

// Validate checks all configuration values and returns all errors found,
// so users can fix every problem in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateUI(&cfg.UI)...)

	return errors.Join(errs...)
}

func validateAPI(a *APIConfig) []error {
	var errs []error

	if a.BaseURL != "" {
		errs = append(errs, validateURL("api.base_url", a.BaseURL)...)
	}

	if a.ProductionURL != "" {
		errs = append(errs, validateURL("api.production_url", a.ProductionURL)...)
	}

	errs = append(errs, validateEnum("api.platform", a.Platform, validPlatforms)...)
	errs = append(errs, validateEnum("api.device", a.Device, validDevices)...)
	errs = append(errs, validateEnum("api.mode", a.Mode, validModes)...)
	errs = append(errs, validateEnum("api.dev_scheme", a.DevScheme, validSchemes)...)

	if a.DevPort < minPort || a.DevPort > maxPort {
		errs = append(errs, fmt.Errorf("api.dev_port: must be between %d and %d, got %d",
			minPort, maxPort, a.DevPort))
	}

	return errs
}

func validateURL(field, raw string) []error {
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid URL %q: %w", field, raw, err)}
	}

	if !validSchemes[u.Scheme] || u.Host == "" {
		return []error{fmt.Errorf("%s: must be an absolute http(s) URL, got %q", field, raw)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("network.request_timeout", n.RequestTimeout, minRequestTimeout)...)
	errs = append(errs, validateDurationMin("network.upload_timeout", n.UploadTimeout, minUploadTimeout)...)
	errs = append(errs, validateDurationMin("network.probe_timeout", n.ProbeTimeout, minProbeTimeout)...)

	if n.MaxRetries < 0 || n.MaxRetries > maxRetriesLimit {
		errs = append(errs, fmt.Errorf("network.max_retries: must be between 0 and %d, got %d",
			maxRetriesLimit, n.MaxRetries))
	}

	if strings.TrimSpace(n.UserAgent) == "" {
		errs = append(errs, errors.New("network.user_agent: must not be empty"))
	}

	if _, err := ParseRate(n.UploadBandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("network.upload_bandwidth_limit: %w", err))
	}

	return errs
}

func validateStorage(s *StorageConfig) []error {
	return validateEnum("storage.backend", s.Backend, validBackends)
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateEnum("logging.log_level", l.LogLevel, validLogLevels)...)
	errs = append(errs, validateEnum("logging.log_format", l.LogFormat, validLogFormats)...)

	return errs
}

func validateUI(u *UIConfig) []error {
	return validateEnum("ui.theme", u.Theme, validThemes)
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateEnum(field, value string, valid map[string]bool) []error {
	if valid[value] {
		return nil
	}

	options := make([]string, 0, len(valid))
	for k := range valid {
		options = append(options, k)
	}

	sort.Strings(options)

	return []error{fmt.Errorf("%s: must be one of %s; got %q", field, strings.Join(options, ", "), value)}
}

func setOf(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}

	return m
}
