package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer
// and the exam and evaluation engines. All methods are nil-safe.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	examsStarted       prometheus.Counter
	examsSubmitted     *prometheus.CounterVec
	entitlementDenied  *prometheus.CounterVec
	evaluationsCreated prometheus.Counter
	assignments        prometheus.Counter
	assignmentFailures prometheus.Counter
	breaches           prometheus.Counter
	completions        *prometheus.CounterVec
	scanDuration       *prometheus.HistogramVec
	eventsPublished    *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	examsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exam_sessions_started_total",
		Help: "Exam attempts started",
	})

	examsSubmitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_sessions_submitted_total",
		Help: "Exam attempts submitted by reason",
	}, []string{"reason"})

	entitlementDenied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_entitlement_denied_total",
		Help: "Start requests refused by the entitlement guard",
	}, []string{"reason"})

	evaluationsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evaluations_created_total",
		Help: "Evaluations created for submitted exams",
	})

	assignments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evaluation_assignments_total",
		Help: "Evaluations assigned to teachers",
	})

	assignmentFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evaluation_assignment_failures_total",
		Help: "Assignment attempts with no active teacher",
	})

	breaches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evaluation_sla_breaches_total",
		Help: "Evaluations flagged as breached",
	})

	completions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluations_completed_total",
		Help: "Completed evaluations by whether the SLA was breached",
	}, []string{"breached"})

	scanDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "background_scan_duration_seconds",
		Help:    "Duration of background scan cycles",
		Buckets: prometheus.DefBuckets,
	}, []string{"scan"})

	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_events_total",
		Help: "Events handed to the notifier by type and outcome",
	}, []string{"type", "outcome"})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by cache name and result",
	}, []string{"cache", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, examsStarted, examsSubmitted, entitlementDenied,
		evaluationsCreated, assignments, assignmentFailures, breaches, completions, scanDuration, eventsPublished, cacheLookups, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		examsStarted:       examsStarted,
		examsSubmitted:     examsSubmitted,
		entitlementDenied:  entitlementDenied,
		evaluationsCreated: evaluationsCreated,
		assignments:        assignments,
		assignmentFailures: assignmentFailures,
		breaches:           breaches,
		completions:        completions,
		scanDuration:       scanDuration,
		eventsPublished:    eventsPublished,
		cacheLookups:       cacheLookups,
	}
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

func (m *MetricsService) ExamStarted() {
	if m == nil {
		return
	}
	m.examsStarted.Inc()
}

func (m *MetricsService) ExamSubmitted(reason string) {
	if m == nil {
		return
	}
	m.examsSubmitted.WithLabelValues(reason).Inc()
}

func (m *MetricsService) EntitlementDenied(reason string) {
	if m == nil {
		return
	}
	m.entitlementDenied.WithLabelValues(reason).Inc()
}

func (m *MetricsService) EvaluationCreated() {
	if m == nil {
		return
	}
	m.evaluationsCreated.Inc()
}

func (m *MetricsService) EvaluationAssigned() {
	if m == nil {
		return
	}
	m.assignments.Inc()
}

func (m *MetricsService) AssignmentFailed() {
	if m == nil {
		return
	}
	m.assignmentFailures.Inc()
}

func (m *MetricsService) EvaluationsBreached(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.breaches.Add(float64(n))
}

func (m *MetricsService) EvaluationCompleted(wasBreached bool) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(fmt.Sprintf("%t", wasBreached)).Inc()
}

// ObserveScan records the duration of one background cycle.
func (m *MetricsService) ObserveScan(scan string, duration time.Duration) {
	if m == nil {
		return
	}
	m.scanDuration.WithLabelValues(scan).Observe(duration.Seconds())
}

func (m *MetricsService) EventPublished(eventType string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.eventsPublished.WithLabelValues(eventType, outcome).Inc()
}

// CacheLookup records a cache hit or miss.
func (m *MetricsService) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}
