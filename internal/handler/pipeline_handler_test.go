package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edu-insight/lms-quality-etl/internal/models"
	"github.com/edu-insight/lms-quality-etl/internal/service"
	"github.com/edu-insight/lms-quality-etl/pkg/config"
)

type stubSource struct {
	mu      sync.Mutex
	courses []models.CourseRecord
	gate    chan struct{}
}

func (s *stubSource) ListCourses(ctx context.Context) ([]models.CourseRecord, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.courses, nil
}

func (s *stubSource) FetchSnapshot(ctx context.Context, course models.CourseRecord) (models.CourseSnapshot, error) {
	return models.CourseSnapshot{Course: course}, nil
}

type stubWriter struct {
	mu    sync.Mutex
	facts int
}

func (s *stubWriter) Persist(ctx context.Context, fact models.CourseFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts++
	return nil
}

type stubPinger struct{ err error }

func (s *stubPinger) Ping(ctx context.Context) error { return s.err }

func newTestRouter(t *testing.T, source service.CourseSource, db service.Pinger) (*gin.Engine, *service.PipelineService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	filter, err := service.NewFilterService(config.FilterConfig{MinPopulation: 5, MaxUngradedShare: 0.1})
	require.NoError(t, err)

	pipeline := service.NewPipelineService(service.PipelineDeps{
		Source:    source,
		Writer:    &stubWriter{},
		Periods:   service.NewPeriodService(time.UTC),
		Filter:    filter,
		Group1:    service.NewGroup1Service(config.FilterConfig{}),
		Group2:    service.NewGroup2Service(),
		Group3:    service.NewGroup3Service(config.FilterConfig{}),
		Assembler: service.NewAssemblerService(nil),
		Reporter:  service.NewReporterService(16, zap.NewNop()),
		Metrics:   service.NewMetricsService(),
		Logger:    zap.NewNop(),
	}, config.PipelineConfig{Workers: 1}, models.DateWindow{Start: 0, End: 1})

	exports := service.NewExportService(config.ExportConfig{}, zap.NewNop())
	h := NewPipelineHandler(pipeline, exports, nil, db, zap.NewNop())

	r := gin.New()
	r.GET("/health", h.Health)
	h.RegisterRoutes(r.Group("/api/v1"))
	return r, pipeline
}

func TestTriggerRunAccepted(t *testing.T) {
	router, pipeline := newTestRouter(t, &stubSource{}, &stubPinger{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	// The run is asynchronous; wait for it to land.
	require.Eventually(t, func() bool {
		return pipeline.LastSummary() != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTriggerRunRejectsConcurrent(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	router, pipeline := newTestRouter(t, &stubSource{gate: gate}, &stubPinger{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, pipeline.Running, 2*time.Second, 5*time.Millisecond)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTriggerRunValidatesDates(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubPinger{})

	body := bytes.NewBufferString(`{"start_date":"not-a-date","end_date":"2025-12-31"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", body)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTriggerRunAcceptsWindowOverride(t *testing.T) {
	router, pipeline := newTestRouter(t, &stubSource{}, &stubPinger{})

	body := bytes.NewBufferString(`{"start_date":"2025-09-01","end_date":"2025-12-31"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", body)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool {
		return pipeline.LastSummary() != nil
	}, 2*time.Second, 10*time.Millisecond)

	summary := pipeline.LastSummary()
	wantStart := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC).Unix()
	assert.Equal(t, wantStart, summary.Window.Start)
	// End of day, inclusive.
	assert.Equal(t, time.Date(2025, time.December, 31, 23, 59, 59, 0, time.UTC).Unix(), summary.Window.End)
}

func TestLatestRunNotFoundBeforeFirstRun(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubPinger{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/latest", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthReportsWarehouseState(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubPinger{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "ok", envelope.Data.Status)
	assert.Equal(t, "ok", envelope.Data.Checks["warehouse"])
	assert.Equal(t, "disabled", envelope.Data.Checks["cache"])
}

func TestHealthDegradedOnWarehouseFailure(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubPinger{err: context.DeadlineExceeded})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "degraded", envelope.Data.Status)
}
