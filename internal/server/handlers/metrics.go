package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/agentstation/taxamap/pkg/research"
)

// Resolve results counted by Metrics.
const (
	ResultCache      = "cache"
	ResultStore      = "store"
	ResultResearched = "researched"
	ResultNotFound   = "not_found"
	ResultError      = "error"
)

var outcomes = []research.Outcome{research.Completed, research.BudgetExceeded, research.Failed}

// Metrics holds the Prometheus collectors served on /metrics. Each server
// gets its own registry.
type Metrics struct {
	registry *prometheus.Registry

	resolvesTotal    *prometheus.CounterVec
	resolveDuration  *prometheus.HistogramVec
	sessionsTotal    *prometheus.CounterVec
	sessionDuration  prometheus.Histogram
	toolCallsTotal   prometheus.Counter
	toolErrorsTotal  prometheus.Counter
	sessionToolCalls prometheus.Histogram

	started time.Time
}

// NewMetrics creates and registers the resolve and research collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
	}

	m.resolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxamap_resolves_total",
			Help: "HTTP resolves by result",
		},
		[]string{"result"}, // cache, store, researched, not_found, error
	)
	m.resolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taxamap_resolve_duration_seconds",
			Help:    "Time taken to answer a resolve",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 9), // 1ms to ~65s
		},
		[]string{"result"},
	)
	m.sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxamap_research_sessions_total",
			Help: "Research sessions by outcome",
		},
		[]string{"outcome"},
	)
	m.sessionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "taxamap_research_duration_seconds",
		Help:    "Wall time of finished research sessions",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
	})
	m.sessionToolCalls = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "taxamap_research_tool_calls",
		Help:    "Tool calls made per research session",
		Buckets: prometheus.LinearBuckets(1, 2, 8),
	})
	m.toolCallsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taxamap_tool_calls_total",
		Help: "Tool calls made by research sessions",
	})
	m.toolErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taxamap_tool_errors_total",
		Help: "Tool calls that returned an error",
	})
	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "taxamap_uptime_seconds",
		Help: "Seconds since the server started",
	}, func() float64 { return time.Since(m.started).Seconds() })

	m.registry.MustRegister(
		m.resolvesTotal,
		m.resolveDuration,
		m.sessionsTotal,
		m.sessionDuration,
		m.sessionToolCalls,
		m.toolCallsTotal,
		m.toolErrorsTotal,
		uptime,
	)
	for _, o := range outcomes {
		m.sessionsTotal.WithLabelValues(string(o))
	}
	return m
}

// Gauge registers a gauge sampled from fn at scrape time.
func (m *Metrics) Gauge(name, help string, labels prometheus.Labels, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}, fn))
}

// ObserveResolve counts one HTTP resolve.
func (m *Metrics) ObserveResolve(result string, d time.Duration) {
	m.resolvesTotal.WithLabelValues(result).Inc()
	m.resolveDuration.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveResearch counts one finished research session.
func (m *Metrics) ObserveResearch(s research.Summary) {
	m.sessionsTotal.WithLabelValues(string(s.Outcome)).Inc()
	m.sessionDuration.Observe(s.Duration.Seconds())
	m.sessionToolCalls.Observe(float64(s.Calls))
	m.toolCallsTotal.Add(float64(s.Calls))
	m.toolErrorsTotal.Add(float64(s.Errors))
}

// Resolves returns the count for one resolve result.
func (m *Metrics) Resolves(result string) uint64 {
	return counterValue(m.resolvesTotal.WithLabelValues(result))
}

// Sessions returns the count for one research outcome.
func (m *Metrics) Sessions(outcome research.Outcome) uint64 {
	return counterValue(m.sessionsTotal.WithLabelValues(string(outcome)))
}

// SessionCounts returns the research session counts keyed by outcome.
func (m *Metrics) SessionCounts() map[string]uint64 {
	out := make(map[string]uint64, len(outcomes))
	for _, o := range outcomes {
		out[string(o)] = m.Sessions(o)
	}
	return out
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

func counterValue(c prometheus.Counter) uint64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return uint64(pb.GetCounter().GetValue())
}

// HandleMetrics handles GET /metrics.
func (h *Handlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.Handler().ServeHTTP(w, r)
}
