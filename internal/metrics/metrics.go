// Package metrics exports replay samples and registry depth to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"settleload/internal/registry"
)

// Metrics holds the replay collectors. Observe satisfies dispatch.Observer
// and ObserveDepth fits registry.WithObserver.
type Metrics struct {
	samples  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	depth    *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settleload_samples_total",
				Help: "Executed actions by type and outcome class",
			},
			[]string{"action", "class"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settleload_sample_duration_seconds",
				Help:    "Time spent executing an action, dependency resolution included",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"action"},
		),
		depth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "settleload_registry_depth",
				Help: "Records waiting in each dependency registry queue",
			},
			[]string{"kind"},
		),
	}

	for _, c := range []prometheus.Collector{m.samples, m.duration, m.depth} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observe records one executed action.
func (m *Metrics) Observe(actionType, class string, elapsed time.Duration) {
	m.samples.WithLabelValues(actionType, class).Inc()
	m.duration.WithLabelValues(actionType).Observe(elapsed.Seconds())
}

// ObserveDepth records the current length of a registry queue.
func (m *Metrics) ObserveDepth(kind registry.Kind, depth int) {
	m.depth.WithLabelValues(string(kind)).Set(float64(depth))
}

// Handler serves g on GET /metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}

// Serve exposes g on addr until ctx ends.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
