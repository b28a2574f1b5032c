package docdex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/docdex/internal/domain"
)

const metricsSubsystem = "sdk"

type clientMetrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
	tokens  *prometheus.CounterVec
}

func newClientMetrics(reg prometheus.Registerer) (*clientMetrics, error) {
	m := &clientMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docdex",
			Subsystem: metricsSubsystem,
			Name:      "operations_total",
			Help:      "Client calls by operation and outcome.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docdex",
			Subsystem: metricsSubsystem,
			Name:      "operation_duration_seconds",
			Help:      "Client call latency.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
		}, []string{"operation"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docdex",
			Subsystem: metricsSubsystem,
			Name:      "tokens_total",
			Help:      "Provider tokens spent by rules calls, by kind.",
		}, []string{"kind"}),
	}
	if err := adopt(reg, &m.calls); err != nil {
		return nil, err
	}
	if err := adopt(reg, &m.latency); err != nil {
		return nil, err
	}
	if err := adopt(reg, &m.tokens); err != nil {
		return nil, err
	}
	return m, nil
}

// adopt registers *c, or swaps in the collector already registered under
// the same descriptor so that several clients can share one registry.
func adopt[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("docdex: register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("docdex: metric registered with type %T", are.ExistingCollector)
	}
	*c = existing
	return nil
}

// observer logs and counts client calls. Both sinks are optional.
type observer struct {
	log     *slog.Logger
	metrics *clientMetrics
}

func newObserver(log *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{log: log}
	if reg != nil {
		m, err := newClientMetrics(reg)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return o, nil
}

func (o *observer) observe(op string, start time.Time, err error) {
	if o == nil {
		return
	}
	elapsed := time.Since(start)

	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.calls.WithLabelValues(op, status).Inc()
		o.metrics.latency.WithLabelValues(op).Observe(elapsed.Seconds())
	}
	if o.log == nil {
		return
	}
	if err != nil {
		o.log.Warn("docdex call failed", slog.String("op", op), slog.Duration("elapsed", elapsed), slog.Any("error", err))
		return
	}
	o.log.Debug("docdex call", slog.String("op", op), slog.Duration("elapsed", elapsed))
}

// metered returns a context collecting provider token usage and a func
// that reports what was collected.
func (o *observer) metered(ctx context.Context) (context.Context, func()) {
	ctx, usage := domain.NewContextWithUsage(ctx)
	return ctx, func() {
		if o == nil || o.metrics == nil {
			return
		}
		embedding, completion, used := usage.Totals()
		if !used {
			return
		}
		o.metrics.tokens.WithLabelValues("embedding").Add(float64(embedding))
		o.metrics.tokens.WithLabelValues("completion").Add(float64(completion))
	}
}
