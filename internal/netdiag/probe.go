package netdiag

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds a connectivity probe.
const DefaultProbeTimeout = 5 * time.Second

// HealthPath is the lightweight reachability endpoint below the base URL.
const HealthPath = "/health"

// ProbeResult is the outcome of one probe. Any HTTP response, whatever its
// status, counts as reachable.
type ProbeResult struct {
	Reachable bool          `json:"reachable"`
	URL       string        `json:"url"`
	Status    int           `json:"status,omitempty"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
}

// Prober issues connectivity probes.
type Prober struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewProber creates a Prober. A nil client uses http.DefaultClient; a zero
// timeout uses DefaultProbeTimeout.
func NewProber(client *http.Client, timeout time.Duration, logger *slog.Logger) *Prober {
	if client == nil {
		client = http.DefaultClient
	}

	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Prober{client: client, timeout: timeout, logger: logger}
}

// Probe sends one unauthenticated GET to <baseURL>/health. It never
// returns an error; failures are described in the result.
func (p *Prober) Probe(ctx context.Context, baseURL string) ProbeResult {
	result := ProbeResult{URL: baseURL}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+HealthPath, http.NoBody)
	if err != nil {
		result.Error = fmt.Sprintf("invalid URL: %v", err)
		return result
	}

	start := time.Now()

	resp, err := p.client.Do(req)
	result.Latency = time.Since(start)

	if err != nil {
		result.Error = err.Error()

		p.logger.Info("connectivity probe failed",
			slog.String("url", baseURL),
			slog.String("error", result.Error),
		)

		return result
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse

	result.Reachable = true
	result.Status = resp.StatusCode

	p.logger.Debug("connectivity probe answered",
		slog.String("url", baseURL),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", result.Latency),
	)

	return result
}
