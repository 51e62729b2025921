package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "sustainability"

// MetricsService owns the Prometheus registry and the domain counters fed by
// the HTTP middleware, the catalog cache, and the assessment services.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec
	cacheEvictions  *prometheus.CounterVec
	txDuration      *prometheus.HistogramVec

	responsesWritten prometheus.Counter
	versionConflicts prometheus.Counter
	draftsSubmitted  prometheus.Counter
	finalizations    *prometheus.CounterVec
	reportOutcomes   *prometheus.CounterVec
	authFailures     prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "catalog_cache_lookups_total",
			Help:      "Catalog cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		cacheLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "catalog_cache_seconds",
			Help:      "Latency of catalog cache round trips",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"op"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "catalog_cache_evicted_keys_total",
			Help:      "Keys removed from the catalog cache by scope",
		}, []string{"scope"}),
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "db_transaction_seconds",
			Help:      "Duration of database transactions by outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		responsesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "assessment_responses_written_total",
			Help:      "Response versions inserted",
		}),
		versionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "assessment_response_version_conflicts_total",
			Help:      "Response updates rejected by optimistic concurrency",
		}),
		draftsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "assessment_drafts_submitted_total",
			Help:      "Draft contributions merged into temp submissions",
		}),
		finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "assessment_finalizations_total",
			Help:      "Finalization attempts by outcome",
		}, []string{"outcome"}),
		reportOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "submission_reports_total",
			Help:      "Submission report generations by final status",
		}, []string{"status"}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "auth_token_rejections_total",
			Help:      "Bearer tokens rejected by the claims resolver",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration, m.requestTotal,
		m.cacheLookups, m.cacheLatency, m.cacheEvictions, m.txDuration,
		m.responsesWritten, m.versionConflicts, m.draftsSubmitted,
		m.finalizations, m.reportOutcomes, m.authFailures,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveCacheLookup records a catalog cache read. result is hit, miss or error.
func (m *MetricsService) ObserveCacheLookup(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
	m.cacheLatency.WithLabelValues("get").Observe(duration.Seconds())
}

// ObserveCacheFill records a catalog cache write.
func (m *MetricsService) ObserveCacheFill(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("set").Observe(duration.Seconds())
}

// AddCacheEvictions counts keys purged for scope.
func (m *MetricsService) AddCacheEvictions(scope string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheEvictions.WithLabelValues(scope).Add(float64(n))
}

// ObserveDBQuery records a finished transaction; label is tx_commit or tx_rollback.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.txDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// IncResponsesWritten counts inserted response versions.
func (m *MetricsService) IncResponsesWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.responsesWritten.Add(float64(n))
}

// IncVersionConflict counts rejected optimistic updates.
func (m *MetricsService) IncVersionConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}

// IncDraftSubmitted counts merged draft contributions.
func (m *MetricsService) IncDraftSubmitted() {
	if m == nil {
		return
	}
	m.draftsSubmitted.Inc()
}

// ObserveFinalize records a finalization attempt outcome ("ok", "conflict", "error").
func (m *MetricsService) ObserveFinalize(outcome string) {
	if m == nil {
		return
	}
	m.finalizations.WithLabelValues(outcome).Inc()
}

// ObserveReport records the terminal status of a report generation.
func (m *MetricsService) ObserveReport(status string) {
	if m == nil {
		return
	}
	m.reportOutcomes.WithLabelValues(status).Inc()
}

// IncAuthFailure counts rejected bearer tokens.
func (m *MetricsService) IncAuthFailure() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}
