// Package metrics exposes Prometheus collectors for imports, letterage
// runs and the HTTP API. A nil *Metrics records nothing, so components
// accept one unconditionally.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robinvdvleuten/lettrage/ledger"
	"github.com/robinvdvleuten/lettrage/letterage"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "lettrage"

// Metrics holds the collectors.
type Metrics struct {
	registry *prometheus.Registry

	ImportsTotal   *prometheus.CounterVec
	ImportRows     *prometheus.CounterVec
	ImportProblems *prometheus.CounterVec
	ImportDuration *prometheus.HistogramVec

	LetterageRuns     *prometheus.CounterVec
	LetterageMatches  *prometheus.CounterVec
	LetterageDuration prometheus.Histogram
	LinesUnlettered   prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates collectors registered on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.ImportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Files imported, by detected format and outcome.",
		},
		[]string{"format", "status"},
	)
	m.ImportRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Data rows read from imported files, by outcome.",
		},
		[]string{"outcome"},
	)
	m.ImportProblems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_problems_total",
			Help:      "Problems reported while importing, by kind and severity.",
		},
		[]string{"kind", "severity"},
	)
	m.ImportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Time spent importing one file.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"format"},
	)

	m.LetterageRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "letterage_runs_total",
			Help:      "Letterage runs, by mode.",
		},
		[]string{"mode"},
	)
	m.LetterageMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "letterage_matches_total",
			Help:      "Matches found by letterage runs, by rule and outcome.",
		},
		[]string{"rule", "outcome"},
	)
	m.LetterageDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "letterage_duration_seconds",
			Help:      "Time spent in one letterage run.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	m.LinesUnlettered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_unlettered_total",
			Help:      "Lines released by clearing a letter code.",
		},
	)

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		m.ImportsTotal, m.ImportRows, m.ImportProblems, m.ImportDuration,
		m.LetterageRuns, m.LetterageMatches, m.LetterageDuration, m.LinesUnlettered,
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveImport records the outcome of one import.
func (m *Metrics) ObserveImport(r *ledger.ImportResult, d time.Duration) {
	if m == nil || r == nil {
		return
	}
	status := "ok"
	if !r.Success() {
		status = "partial"
	}
	m.ImportsTotal.WithLabelValues(r.Format, status).Inc()
	m.ImportDuration.WithLabelValues(r.Format).Observe(d.Seconds())
	m.ImportRows.WithLabelValues("accepted").Add(float64(r.ValidRows))
	m.ImportRows.WithLabelValues("rejected").Add(float64(r.TotalRows - r.ValidRows))
	for _, e := range r.Errors {
		m.ImportProblems.WithLabelValues(e.Kind.String(), e.Severity.String()).Inc()
	}
}

// ObserveImportFailure records an import rejected as a whole.
func (m *Metrics) ObserveImportFailure(format string) {
	if m == nil {
		return
	}
	if format == "" {
		format = "unknown"
	}
	m.ImportsTotal.WithLabelValues(format, "failed").Inc()
}

// ObserveLetterage records one letterage run.
func (m *Metrics) ObserveLetterage(r *letterage.Result, d time.Duration) {
	if m == nil || r == nil {
		return
	}
	mode := "apply"
	if r.DryRun {
		mode = "dry_run"
	}
	m.LetterageRuns.WithLabelValues(mode).Inc()
	m.LetterageDuration.Observe(d.Seconds())
	for _, match := range r.Matches {
		outcome := "pending"
		if match.Applied {
			outcome = "applied"
		}
		m.LetterageMatches.WithLabelValues(match.RuleID, outcome).Inc()
	}
}

// ObserveUnletter records lines released from a letter code.
func (m *Metrics) ObserveUnletter(lines int) {
	if m == nil {
		return
	}
	m.LinesUnlettered.Add(float64(lines))
}

// Middleware counts and times the requests served by next under route.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush lets streaming handlers work behind the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
