// Package metrics exposes Prometheus counters for the bell clock.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shipsbell"

// Ringer labels.
const (
	RingerActive   = "active"
	RingerDeferred = "deferred"
)

// Metrics holds all bell clock metrics.
type Metrics struct {
	BellsRung         *prometheus.CounterVec
	DeferredScheduled prometheus.Counter
	DeferredCancelled prometheus.Counter
	DeferredDropped   prometheus.Counter
	Ticks             prometheus.Counter
	RingerMode        prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates and registers the metrics with reg. A nil reg gets a
// private registry, which keeps tests from colliding on the default one.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		BellsRung: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bells_rung_total",
			Help:      "Bell patterns delivered, by ringer.",
		}, []string{"ringer"}),
		DeferredScheduled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deferred_scheduled_total",
			Help:      "Deferred bell requests submitted.",
		}),
		DeferredCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deferred_cancelled_total",
			Help:      "Deferred bell requests cancelled on return to the foreground.",
		}),
		DeferredDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deferred_dropped_total",
			Help:      "Deferred bell requests dropped because they were too late.",
		}),
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Foreground ticks processed.",
		}),
		RingerMode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ringer_mode",
			Help:      "Ringer holding delivery responsibility (0 inactive, 1 active, 2 deferred).",
		}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr
// disables the endpoint.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
