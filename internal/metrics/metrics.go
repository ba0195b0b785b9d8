// Package metrics exposes Prometheus instruments for the engine and the HTTP
// API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	JourneysProcessed *prometheus.CounterVec
	MessagesSent      prometheus.Counter
	StepsAdvanced     prometheus.Counter
	Replies           *prometheus.CounterVec
	ScheduleFailOpen  prometheus.Counter

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInFlight        prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the instruments on reg. Pass prometheus.NewRegistry() in
// tests.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JourneysProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dripline_journeys_processed_total",
			Help: "Journeys visited by the tick processor, by result",
		}, []string{"result"}),
		MessagesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "dripline_messages_sent_total",
			Help: "Messages delivered by message steps",
		}),
		StepsAdvanced: f.NewCounter(prometheus.CounterOpts{
			Name: "dripline_steps_advanced_total",
			Help: "Journey cursor moves, including completions",
		}),
		Replies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dripline_replies_total",
			Help: "Inbound replies handled, by sentiment and action",
		}, []string{"sentiment", "action"}),
		ScheduleFailOpen: f.NewCounter(prometheus.CounterOpts{
			Name: "dripline_schedule_fail_open_total",
			Help: "Campaigns run despite an unreadable schedule window",
		}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		}),
		gatherer: reg,
	}
}

func (m *Metrics) JourneyResult(result string) {
	if m == nil {
		return
	}
	m.JourneysProcessed.WithLabelValues(result).Inc()
}

func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.MessagesSent.Inc()
}

func (m *Metrics) StepAdvanced() {
	if m == nil {
		return
	}
	m.StepsAdvanced.Inc()
}

func (m *Metrics) Reply(sentiment, action string) {
	if m == nil {
		return
	}
	m.Replies.WithLabelValues(sentiment, action).Inc()
}

func (m *Metrics) FailOpen() {
	if m == nil {
		return
	}
	m.ScheduleFailOpen.Inc()
}

// Middleware records request count and latency. The route label is the chi
// pattern, not the raw path.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{"method": r.Method, "route": route, "status": strconv.Itoa(status)}
		m.httpRequestsTotal.With(labels).Inc()
		m.httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
