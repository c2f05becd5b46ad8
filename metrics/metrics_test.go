package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/robinvdvleuten/lettrage/ledger"
	"github.com/robinvdvleuten/lettrage/letterage"
)

func TestObserveImport(t *testing.T) {
	m := New("")
	r := &ledger.ImportResult{
		Format:    "delimited",
		TotalRows: 5,
		ValidRows: 3,
		Errors: []*ledger.ImportError{
			ledger.NewFormatError(2, "date", "bad date"),
			ledger.NewBusinessWarning(3, "entry", "stale"),
		},
	}
	m.ObserveImport(r, 200*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportsTotal.WithLabelValues("delimited", "partial")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ImportRows.WithLabelValues("accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ImportRows.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportProblems.WithLabelValues("format", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportProblems.WithLabelValues("business", "warning")))

	m.ObserveImportFailure("")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportsTotal.WithLabelValues("unknown", "failed")))
}

func TestObserveLetterage(t *testing.T) {
	m := New("test")
	m.ObserveLetterage(&letterage.Result{
		Matches: []letterage.Match{
			{RuleID: "bank", Applied: true},
			{RuleID: "bank"},
			{RuleID: "clients", Applied: true},
		},
	}, time.Second)
	m.ObserveUnletter(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LetterageRuns.WithLabelValues("apply")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LetterageMatches.WithLabelValues("bank", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LetterageMatches.WithLabelValues("bank", "pending")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.LinesUnlettered))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveImport(&ledger.ImportResult{}, time.Second)
	m.ObserveLetterage(&letterage.Result{}, time.Second)
	m.ObserveUnletter(1)
	m.ObserveImportFailure("strict")

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.True(t, m.Middleware("/x", h) != nil)
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New("")
	h := m.Middleware("/api/lines", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/lines", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/lines", "418")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "lettrage_http_requests_total"))
}
