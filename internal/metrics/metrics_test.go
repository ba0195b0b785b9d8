package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/dripline/internal/metrics"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	m.JourneyResult("ok")
	m.MessageSent()
	m.StepAdvanced()
	m.Reply("positive", "create_task")
	m.FailOpen()
}

func TestCounters(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.JourneyResult("failed")
	m.JourneyResult("failed")
	m.MessageSent()
	m.Reply("negative", "disqualify")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JourneysProcessed.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Replies.WithLabelValues("negative", "disqualify")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/campaigns/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/campaigns/42", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/campaigns/{id}",status="418"} 1`)
}
