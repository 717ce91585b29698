// Package metrics exposes dispatch counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "popmap"

// Dispatch records one observation per dispatched event.
type Dispatch struct {
	events   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewDispatch creates the dispatch metrics and registers them on reg.
func NewDispatch(reg prometheus.Registerer) *Dispatch {
	m := &Dispatch{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatched_events_total",
			Help:      "Inbound events by handler category, handler and outcome.",
		}, []string{"category", "handler", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time from routing to handler completion.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"category"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "handlers_in_flight",
			Help:      "Handlers currently executing.",
		}),
	}
	reg.MustRegister(m.events, m.latency, m.inFlight)
	return m
}

// Observe counts a terminal outcome.
func (m *Dispatch) Observe(category, handler, outcome string, elapsed time.Duration) {
	// Dropped events carry the unmatched name; keep the label set bounded.
	if outcome == "dropped" {
		handler = ""
	}
	m.events.WithLabelValues(category, handler, outcome).Inc()
	m.latency.WithLabelValues(category).Observe(elapsed.Seconds())
}

// InFlight moves the executing-handlers gauge.
func (m *Dispatch) InFlight(delta int) {
	m.inFlight.Add(float64(delta))
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Serve exposes g on addr+path until ctx is cancelled.
func Serve(ctx context.Context, addr, path string, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "addr", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
