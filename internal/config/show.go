package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated summary
// to w, showing the values in effect after all override layers.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.Path)

	renderAPISection(ew, &r.API)
	renderNetworkSection(ew, &r.Network)
	renderStorageSection(ew, &r.Storage)
	renderLoggingSection(ew, &r.Logging)
	renderUISection(ew, &r.UI)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderAPISection(ew *errWriter, a *APIConfig) {
	ew.printf("[api]\n")

	if a.BaseURL != "" {
		ew.printf("  base_url       = %q\n", a.BaseURL)
	}

	ew.printf("  platform       = %q\n", a.Platform)
	ew.printf("  device         = %q\n", a.Device)
	ew.printf("  mode           = %q\n", a.Mode)

	if a.ProductionURL != "" {
		ew.printf("  production_url = %q\n", a.ProductionURL)
	}

	if a.DevHost != "" {
		ew.printf("  dev_host       = %q\n", a.DevHost)
	}

	ew.printf("  dev_port       = %d\n", a.DevPort)
	ew.printf("  dev_scheme     = %q\n", a.DevScheme)
	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, n *NetworkConfig) {
	ew.printf("[network]\n")
	ew.printf("  request_timeout        = %q\n", n.RequestTimeout)
	ew.printf("  upload_timeout         = %q\n", n.UploadTimeout)
	ew.printf("  probe_timeout          = %q\n", n.ProbeTimeout)
	ew.printf("  max_retries            = %d\n", n.MaxRetries)
	ew.printf("  user_agent             = %q\n", n.UserAgent)
	ew.printf("  upload_bandwidth_limit = %q\n", n.UploadBandwidthLimit)
	ew.printf("\n")
}

func renderStorageSection(ew *errWriter, s *StorageConfig) {
	ew.printf("[storage]\n")
	ew.printf("  backend = %q\n", s.Backend)

	if p := s.ResolvedPath(); p != "" {
		ew.printf("  path    = %q\n", p)
	}

	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderUISection(ew *errWriter, u *UIConfig) {
	ew.printf("[ui]\n")
	ew.printf("  theme = %q\n", u.Theme)
}
