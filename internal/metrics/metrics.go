package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the search engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	discardedFetches *prometheus.CounterVec
	searches         *prometheus.CounterVec
	results          *prometheus.CounterVec
	rateLimitAborts  *prometheus.CounterVec
	childrenCache    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campsite_finder",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Upstream HTTP calls by source, operation and outcome",
		}, []string{"source", "op", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "campsite_finder",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Upstream HTTP call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "op"}),
		discardedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campsite_finder",
			Subsystem: "search",
			Name:      "discarded_fetches_total",
			Help:      "Facility/month fetches whose error was discarded by the merge step",
		}, []string{"source"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campsite_finder",
			Subsystem: "search",
			Name:      "runs_total",
			Help:      "Searches started by kind and source",
		}, []string{"kind", "source"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campsite_finder",
			Subsystem: "search",
			Name:      "results_total",
			Help:      "Result events emitted",
		}, []string{"source"}),
		rateLimitAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campsite_finder",
			Subsystem: "search",
			Name:      "rate_limit_aborts_total",
			Help:      "Searches whose remaining batches were abandoned after a 429",
		}, []string{"source"}),
		childrenCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campsite_finder",
			Subsystem: "catalog",
			Name:      "children_cache_total",
			Help:      "Children metadata cache lookups by result",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{
		m.upstreamRequests, m.upstreamLatency, m.discardedFetches,
		m.searches, m.results, m.rateLimitAborts, m.childrenCache,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveUpstream(source, op, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(source, op, outcome).Inc()
	m.upstreamLatency.WithLabelValues(source, op).Observe(took.Seconds())
}

func (m *Metrics) DiscardedFetch(source string) {
	if m == nil {
		return
	}
	m.discardedFetches.WithLabelValues(source).Inc()
}

func (m *Metrics) SearchStarted(kind, source string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(kind, source).Inc()
}

func (m *Metrics) ResultEmitted(source string) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(source).Inc()
}

func (m *Metrics) RateLimitAbort(source string) {
	if m == nil {
		return
	}
	m.rateLimitAborts.WithLabelValues(source).Inc()
}

func (m *Metrics) ChildrenCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.childrenCache.WithLabelValues(result).Inc()
}
