// Package monitoring records extraction metrics in Prometheus form and
// raises alerts when a batch run crosses configured thresholds.
package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/healthmetrics-cli/internal/orchestrator"
	"github.com/sells-group/healthmetrics-cli/internal/resilience"
)

// Attempt outcomes used as the "outcome" label.
const (
	OutcomeSuccess   = "success"
	OutcomeRetryable = "retryable"
	OutcomePermanent = "permanent"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// Snapshot is a point-in-time view of the counters the Alerter evaluates.
type Snapshot struct {
	Requests  int
	Done      int
	Failed    int
	Attempts  int
	CostUSD   float64
	FailRate  float64
	ByOutcome map[string]int
}

// Collector is an orchestrator.Observer backed by a private Prometheus
// registry. It is safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cost            *prometheus.CounterVec
	transitions     *prometheus.CounterVec

	mu   sync.Mutex
	snap Snapshot
}

// NewCollector creates a Collector with its metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthmetrics",
			Name:      "provider_attempts_total",
			Help:      "Provider invocations by outcome.",
		}, []string{"provider", "outcome"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "healthmetrics",
			Name:      "provider_attempt_duration_seconds",
			Help:      "Latency of single provider invocations.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthmetrics",
			Name:      "extraction_requests_total",
			Help:      "Extraction requests by terminal state and winning provider.",
		}, []string{"provider", "state"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "healthmetrics",
			Name:      "extraction_request_duration_seconds",
			Help:      "End-to-end extraction latency including retries and fallback.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"state"}),
		cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthmetrics",
			Name:      "estimated_cost_usd_total",
			Help:      "Estimated spend of successful extractions.",
		}, []string{"provider"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthmetrics",
			Name:      "state_transitions_total",
			Help:      "Request lifecycle transitions by target state.",
		}, []string{"state"}),
		snap: Snapshot{ByOutcome: make(map[string]int)},
	}

	c.registry.MustRegister(
		c.attempts,
		c.attemptDuration,
		c.requests,
		c.requestDuration,
		c.cost,
		c.transitions,
	)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// StateChanged implements orchestrator.Observer.
func (c *Collector) StateChanged(_ string, _ string, state orchestrator.State) {
	c.transitions.WithLabelValues(state.String()).Inc()
}

// AttemptFinished implements orchestrator.Observer.
func (c *Collector) AttemptFinished(provider string, _ int, elapsed time.Duration, err error) {
	outcome := Outcome(err)
	c.attempts.WithLabelValues(provider, outcome).Inc()
	c.attemptDuration.WithLabelValues(provider).Observe(elapsed.Seconds())

	c.mu.Lock()
	c.snap.Attempts++
	c.snap.ByOutcome[outcome]++
	c.mu.Unlock()
}

// RequestFinished implements orchestrator.Observer.
func (c *Collector) RequestFinished(provider string, state orchestrator.State, elapsed time.Duration, costUSD float64) {
	c.requests.WithLabelValues(provider, state.String()).Inc()
	c.requestDuration.WithLabelValues(state.String()).Observe(elapsed.Seconds())
	if costUSD > 0 {
		c.cost.WithLabelValues(provider).Add(costUSD)
	}

	c.mu.Lock()
	c.snap.Requests++
	switch state {
	case orchestrator.StateDone:
		c.snap.Done++
	case orchestrator.StateFailed:
		c.snap.Failed++
	}
	c.snap.CostUSD += costUSD
	c.mu.Unlock()
}

// Collect returns a copy of the current counters.
func (c *Collector) Collect(_ context.Context) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.snap
	snap.ByOutcome = make(map[string]int, len(c.snap.ByOutcome))
	for k, v := range c.snap.ByOutcome {
		snap.ByOutcome[k] = v
	}
	if finished := snap.Done + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	return &snap
}

// WriteTextfile writes all metrics to path in the Prometheus text format,
// suitable for the node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	return nil
}

// Outcome classifies an attempt error for the outcome label.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	var pe *resilience.ProviderError
	if errors.As(err, &pe) {
		if pe.Retryable() {
			return OutcomeRetryable
		}
		return OutcomePermanent
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeCancelled
	}
	return OutcomeError
}

var _ orchestrator.Observer = (*Collector)(nil)
