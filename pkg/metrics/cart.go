package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics records the optimistic cart engine's channel activity.
type CartMetrics struct {
	dispatched  *prometheus.CounterVec
	superseded  *prometheus.CounterVec
	staleDrops  *prometheus.CounterVec
	failures    *prometheus.CounterVec
	settleTimes *prometheus.HistogramVec
}

// NewCartMetrics registers the cart engine metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_dispatched",
		Help: "Cart mutation requests sent to the commerce backend.",
	}, []string{"kind"})
	superseded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_superseded",
		Help: "Cart mutations replaced by a newer intent on the same channel before settling.",
	}, []string{"kind"})
	staleDrops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_stale_responses_dropped",
		Help: "Settled responses ignored because the channel owner changed.",
	}, []string{"kind"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutation_failures",
		Help: "Cart mutations that settled with a remote error.",
	}, []string{"kind"})
	settleTimes := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_settle_duration_seconds",
		Help:    "Time from dispatch to settlement per mutation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	reg.MustRegister(dispatched, superseded, staleDrops, failures, settleTimes)
	return &CartMetrics{
		dispatched:  dispatched,
		superseded:  superseded,
		staleDrops:  staleDrops,
		failures:    failures,
		settleTimes: settleTimes,
	}
}

// IncDispatched counts one wire request for the mutation kind.
func (c *CartMetrics) IncDispatched(kind string) {
	if c == nil || c.dispatched == nil {
		return
	}
	c.dispatched.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncSuperseded counts a latest-wins replacement on a pending channel.
func (c *CartMetrics) IncSuperseded(kind string) {
	if c == nil || c.superseded == nil {
		return
	}
	c.superseded.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncStaleDropped counts a settled response discarded as stale.
func (c *CartMetrics) IncStaleDropped(kind string) {
	if c == nil || c.staleDrops == nil {
		return
	}
	c.staleDrops.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncFailure counts a mutation that settled with an error.
func (c *CartMetrics) IncFailure(kind string) {
	if c == nil || c.failures == nil {
		return
	}
	c.failures.WithLabelValues(normalizeLabel(kind)).Inc()
}

// ObserveSettle records dispatch-to-settlement latency.
func (c *CartMetrics) ObserveSettle(kind string, duration time.Duration) {
	if c == nil || c.settleTimes == nil {
		return
	}
	c.settleTimes.WithLabelValues(normalizeLabel(kind)).Observe(duration.Seconds())
}

func normalizeLabel(kind string) string {
	if kind == "" {
		return "unknown"
	}
	return kind
}
