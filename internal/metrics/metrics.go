// Package metrics records request pipeline activity as Prometheus metrics.
package metrics

import (
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "filevault"

// Collector implements api.Metrics on Prometheus counters.
type Collector struct {
	requests      *prometheus.CounterVec
	failures      *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	uploadedBytes prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP exchanges by method and response status.",
		}, []string{"method", "status_code"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_failures_total",
			Help:      "Failed requests by failure kind.",
		}, []string{"kind"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_refreshes_total",
			Help:      "Session refresh attempts by outcome.",
		}, []string{"outcome"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "File bytes uploaded successfully.",
		}),
	}

	reg.MustRegister(c.requests, c.failures, c.refreshes, c.uploadedBytes)

	return c
}

// RecordRequest counts one HTTP exchange.
func (c *Collector) RecordRequest(method string, status int) {
	c.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// RecordFailure counts one classified failure.
func (c *Collector) RecordFailure(kind string) {
	c.failures.WithLabelValues(kind).Inc()
}

// RecordRefresh counts one refresh attempt.
func (c *Collector) RecordRefresh(outcome string) {
	c.refreshes.WithLabelValues(outcome).Inc()
}

// RecordUploadBytes adds to the uploaded byte total.
func (c *Collector) RecordUploadBytes(n int64) {
	c.uploadedBytes.Add(float64(n))
}

// WriteText writes every metric family in the Prometheus text format.
func WriteText(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gathering: %w", err)
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: writing %s: %w", mf.GetName(), err)
		}
	}

	return nil
}
