// Package observability owns the Prometheus registry and the metric sets
// registered on it.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/rtaudio/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	AudioCore *metrics.AudioCoreMetrics
}

// NewMetrics creates a registry and registers every metric set on it.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	audioCoreMetrics, err := metrics.NewAudioCoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create audiocore metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		AudioCore: audioCoreMetrics,
	}, nil
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
