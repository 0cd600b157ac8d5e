package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	AttemptsStarted   prometheus.Counter
	AttemptsGraded    prometheus.Counter
	AttemptRejections *prometheus.CounterVec
	ScoreRatio        prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		AttemptsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exam_attempts_started_total",
			Help: "Attempts admitted by start",
		}),
		AttemptsGraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exam_attempts_graded_total",
			Help: "Attempts graded by submit",
		}),
		AttemptRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exam_attempt_rejections_total",
				Help: "Rejected start/submit requests",
			},
			[]string{"op", "reason"},
		),
		ScoreRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "exam_attempt_score_ratio",
			Help:    "Score divided by the exam's total points at grading time",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
	m.reg.MustRegister(
		m.RequestCounter, m.RequestDuration,
		m.AttemptsStarted, m.AttemptsGraded, m.AttemptRejections, m.ScoreRatio,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) AttemptStarted() { m.AttemptsStarted.Inc() }

func (m *Metrics) AttemptGraded(score float64, totalPoints int) {
	m.AttemptsGraded.Inc()
	if totalPoints > 0 {
		m.ScoreRatio.Observe(score / float64(totalPoints))
	}
}

func (m *Metrics) AttemptRejected(op, reason string) {
	m.AttemptRejections.WithLabelValues(op, reason).Inc()
}

// Middleware records request count and latency labelled by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
