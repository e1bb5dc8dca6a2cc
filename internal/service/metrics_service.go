package service

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

const metricsNamespace = "sortify"

// MetricsService owns the Prometheus registry. A nil receiver records nothing.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	rewardsCredited *prometheus.CounterVec
}

// NewMetricsService registers the HTTP, cache, lifecycle and runtime collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route template and status.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "route", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by keyspace and result.",
		}, []string{"keyspace", "result"}),
		cacheLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "operation_seconds",
			Help:      "Redis round trip by operation.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05},
		}, []string{"op"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transitions_total",
			Help:      "Lifecycle transition attempts by entity, transition and outcome code.",
		}, []string{"entity", "transition", "outcome"}),
		rewardsCredited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rewards_credited_total",
			Help:      "Reward tokens credited to the ledger by entry kind.",
		}, []string{"kind"}),
	}

	registry.MustRegister(
		m.requestDuration,
		m.cacheLookups,
		m.cacheLatency,
		m.transitions,
		m.rewardsCredited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordCacheLookup counts a hit or miss in a keyspace such as "verifier".
func (m *MetricsService) RecordCacheLookup(keyspace string, hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(keyspace, result).Inc()
	m.cacheLatency.WithLabelValues("get").Observe(duration.Seconds())
}

// ObserveCacheWrite tracks the duration of a cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("set").Observe(duration.Seconds())
}

// RecordTransition counts a lifecycle transition attempt. The outcome is "ok"
// when committed, otherwise the lowercased error code, e.g. "invalid_state".
func (m *MetricsService) RecordTransition(entity, transition string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(appErrors.FromError(err).Code)
	}
	m.transitions.WithLabelValues(entity, transition, outcome).Inc()
}

// RecordReward adds a credited amount.
func (m *MetricsService) RecordReward(kind string, amount decimal.Decimal) {
	if m == nil || !amount.IsPositive() {
		return
	}
	value, _ := amount.Float64()
	m.rewardsCredited.WithLabelValues(kind).Add(value)
}
