package service

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edu-insight/lms-quality-etl/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the
// pipeline: per-course outcomes, stage timings and cache behaviour.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	coursesProcessed prometheus.Counter
	coursesAdmitted  prometheus.Counter
	coursesRejected  *prometheus.CounterVec
	integrityFaults  prometheus.Counter
	persistFaults    prometheus.Counter
	fetchDuration    prometheus.Histogram
	upsertDuration   prometheus.Histogram
	runDuration      prometheus.Histogram
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
}

// NewMetricsService registers the pipeline collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	coursesProcessed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "etl_courses_processed_total",
		Help: "Courses that entered the transform stage",
	})
	coursesAdmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "etl_courses_admitted_total",
		Help: "Courses admitted by the admissibility filter",
	})
	coursesRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_courses_rejected_total",
		Help: "Courses rejected by the admissibility filter",
	}, []string{"reason"})
	integrityFaults := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "etl_integrity_faults_total",
		Help: "Admitted courses withheld due to incomplete indicator results",
	})
	persistFaults := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "etl_persistence_faults_total",
		Help: "Fact upserts that failed",
	})
	fetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "etl_snapshot_fetch_seconds",
		Help:    "Duration of course snapshot fetches from the source platform",
		Buckets: prometheus.DefBuckets,
	})
	upsertDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "etl_fact_upsert_seconds",
		Help:    "Duration of dimensional fact upserts",
		Buckets: prometheus.DefBuckets,
	})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "etl_run_seconds",
		Help:    "Duration of full pipeline runs",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "etl_snapshot_cache_hits_total",
		Help: "Snapshot cache hits",
	})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "etl_snapshot_cache_misses_total",
		Help: "Snapshot cache misses",
	})
	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(coursesProcessed, coursesAdmitted, coursesRejected,
		integrityFaults, persistFaults, fetchDuration, upsertDuration,
		runDuration, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		coursesProcessed: coursesProcessed,
		coursesAdmitted:  coursesAdmitted,
		coursesRejected:  coursesRejected,
		integrityFaults:  integrityFaults,
		persistFaults:    persistFaults,
		fetchDuration:    fetchDuration,
		upsertDuration:   upsertDuration,
		runDuration:      runDuration,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler for the ops API.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveCourse records one course outcome.
func (m *MetricsService) ObserveCourse(admitted bool, reason models.RejectReason) {
	if m == nil {
		return
	}
	m.coursesProcessed.Inc()
	if admitted {
		m.coursesAdmitted.Inc()
		return
	}
	m.coursesRejected.WithLabelValues(string(reason)).Inc()
}

// ObserveIntegrityFault counts an admitted course withheld from
// persistence.
func (m *MetricsService) ObserveIntegrityFault() {
	if m == nil {
		return
	}
	m.integrityFaults.Inc()
}

// ObservePersistence records one fact upsert attempt.
func (m *MetricsService) ObservePersistence(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.upsertDuration.Observe(duration.Seconds())
	if err != nil {
		m.persistFaults.Inc()
	}
}

// ObserveFetch records one snapshot fetch.
func (m *MetricsService) ObserveFetch(duration time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(duration.Seconds())
}

// ObserveRun records a completed pipeline run.
func (m *MetricsService) ObserveRun(duration time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(duration.Seconds())
}

// RecordCacheOperation records a snapshot cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		return
	}
	m.cacheMisses.Inc()
}
