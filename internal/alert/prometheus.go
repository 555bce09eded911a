package alert

import (
	"context"
	"errors"
	"net/http"
	"time"

	"hostwatch/internal/client"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PrometheusExporter exposes engine metrics over HTTP on its own registry
type PrometheusExporter struct {
	server   *http.Server
	registry *prometheus.Registry
	metrics  *client.PrometheusMetrics
	logger   *logrus.Logger
	port     string
}

func NewPrometheusExporter(port string, logger *logrus.Logger) *PrometheusExporter {
	registry := CreateCustomRegistry()
	metrics := client.NewPrometheusMetrics(registry)

	e := &PrometheusExporter{
		registry: registry,
		metrics:  metrics,
		logger:   logger,
		port:     port,
	}
	e.server = &http.Server{
		Addr:              ":" + port,
		Handler:           e.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return e
}

// Handler serves /metrics and /health
func (e *PrometheusExporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Start serves until ctx is cancelled, then shuts the server down
func (e *PrometheusExporter) Start(ctx context.Context) error {
	e.logger.Infof("Starting Prometheus exporter on port %s", e.port)
	e.logger.Infof("Metrics available at: http://localhost:%s/metrics", e.port)

	errCh := make(chan error, 1)
	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e.logger.Info("Shutting down Prometheus exporter...")
	return e.server.Shutdown(shutdownCtx)
}

func (e *PrometheusExporter) GetMetrics() *client.PrometheusMetrics {
	return e.metrics
}

// CreateCustomRegistry returns a registry carrying the Go runtime and process collectors
func CreateCustomRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return registry
}
