// Package metrics exposes reward engine activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/tourguide/engine"
)

// Batch outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomePartial   = "partial"
	OutcomeCancelled = "cancelled"
)

var _ engine.Recorder = (*Collector)(nil)

// Collector bundles the engine metrics and implements engine.Recorder.
type Collector struct {
	gatherer prometheus.Gatherer

	Awarded         prometheus.Counter
	AuthorityErrors prometheus.Counter
	BatchRuns       *prometheus.CounterVec
	BatchDurations  prometheus.Histogram
	BatchUsers      prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice on one registry reuses the existing
// collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	awarded, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tourguide_rewards_awarded_total",
		Help: "Reward records appended to users.",
	}), "tourguide_rewards_awarded_total")
	if err != nil {
		return nil, err
	}

	authorityErrors, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tourguide_authority_errors_total",
		Help: "Reward point lookups that failed and were skipped.",
	}), "tourguide_authority_errors_total")
	if err != nil {
		return nil, err
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tourguide_batch_runs_total",
		Help: "Reward batch runs, labeled by outcome.",
	}, []string{"outcome"}), "tourguide_batch_runs_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tourguide_batch_duration_seconds",
		Help:    "Reward batch wall time in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 1200},
	}), "tourguide_batch_duration_seconds")
	if err != nil {
		return nil, err
	}

	users, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tourguide_batch_users",
		Help: "Number of users in the most recent reward batch.",
	}), "tourguide_batch_users")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		Awarded:         awarded,
		AuthorityErrors: authorityErrors,
		BatchRuns:       runs,
		BatchDurations:  durations,
		BatchUsers:      users,
	}, nil
}

// RewardsAwarded implements engine.Recorder.
func (c *Collector) RewardsAwarded(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Awarded.Add(float64(n))
}

// AuthorityFailed implements engine.Recorder.
func (c *Collector) AuthorityFailed() {
	if c == nil {
		return
	}
	c.AuthorityErrors.Inc()
}

// BatchCompleted implements engine.Recorder.
func (c *Collector) BatchCompleted(result engine.BatchResult, err error) {
	if c == nil {
		return
	}
	c.BatchRuns.WithLabelValues(Outcome(err)).Inc()
	c.BatchDurations.Observe(result.Duration.Seconds())
	c.BatchUsers.Set(float64(result.Users))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Outcome classifies a batch error for the outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, engine.ErrPoolClosed):
		return OutcomeCancelled
	default:
		return OutcomePartial
	}
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
