package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"jubi-watch/internal/logger"
	"jubi-watch/internal/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jubi_watch"

// Metrics holds the collectors exported on /metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	passes          *prometheus.CounterVec
	passDuration    prometheus.Histogram
	holdingValue    *prometheus.GaugeVec
	todayProfit     prometheus.Gauge
	totalProfit     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_request_seconds",
			Help:      "Latency of exchange calls including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "outcome"}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Valuation passes by outcome.",
		}, []string{"outcome"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_seconds",
			Help:      "Duration of a full fetch, aggregate and render pass.",
			Buckets:   []float64{.25, .5, 1, 2, 5, 10, 30},
		}),
		holdingValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "holding_value",
			Help:      "Balance times current price per displayed coin.",
		}, []string{"coin"}),
		todayProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "today_profit",
			Help:      "Sum of today's profit across displayed coins.",
		}),
		totalProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_profit",
			Help:      "Sum of total profit across displayed coins.",
		}),
	}
	m.registry.MustRegister(m.requestDuration, m.passes, m.passDuration, m.holdingValue, m.todayProfit, m.totalProfit)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(endpoint string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(endpoint, outcome(err)).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObservePass(started time.Time, err error) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(outcome(err)).Inc()
	m.passDuration.Observe(time.Since(started).Seconds())
}

// ObserveValuation replaces the per-coin gauges with the latest holdings.
func (m *Metrics) ObserveValuation(holdings []types.Holding, summary types.Summary) {
	if m == nil {
		return
	}
	m.holdingValue.Reset()
	for _, h := range holdings {
		m.holdingValue.WithLabelValues(h.Coin).Set(h.Value())
	}
	m.todayProfit.Set(summary.TodayProfit)
	m.totalProfit.Set(summary.TotalProfit)
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Metrics endpoint listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
