package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edu-insight/lms-quality-etl/internal/dto"
	"github.com/edu-insight/lms-quality-etl/internal/models"
	"github.com/edu-insight/lms-quality-etl/internal/service"
	appErrors "github.com/edu-insight/lms-quality-etl/pkg/errors"
	"github.com/edu-insight/lms-quality-etl/pkg/response"
)

// runTimeout bounds a triggered run so an abandoned source platform
// cannot pin a goroutine forever.
const runTimeout = 4 * time.Hour

// PipelineHandler exposes the ops surface: triggering runs, inspecting
// the latest summary and liveness checks.
type PipelineHandler struct {
	pipeline *service.PipelineService
	exports  *service.ExportService
	cache    *service.CacheService
	db       service.Pinger
	validate *validator.Validate
	logger   *zap.Logger
}

// NewPipelineHandler constructs the handler.
func NewPipelineHandler(
	pipeline *service.PipelineService,
	exports *service.ExportService,
	cache *service.CacheService,
	db service.Pinger,
	logger *zap.Logger,
) *PipelineHandler {
	return &PipelineHandler{
		pipeline: pipeline,
		exports:  exports,
		cache:    cache,
		db:       db,
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterRoutes mounts the ops endpoints on the router group.
func (h *PipelineHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/runs", h.TriggerRun)
	rg.GET("/runs/latest", h.LatestRun)
}

// TriggerRun starts a pipeline run asynchronously. The response is
// immediate; progress is observable via /runs/latest and the metrics
// endpoint. A second trigger while a run is in flight is rejected.
func (h *PipelineHandler) TriggerRun(c *gin.Context) {
	// An empty body means "run with the configured window".
	var req dto.TriggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.ErrValidation.WithError(err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.ErrValidation.WithError(err))
		return
	}

	window, overridden, err := req.Window()
	if err != nil {
		response.Error(c, appErrors.ErrValidation.WithError(err))
		return
	}

	if h.pipeline.Running() {
		response.Error(c, appErrors.ErrRunInProgress)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		var summary models.RunSummary
		var runErr error
		if overridden {
			summary, runErr = h.pipeline.RunWindow(ctx, window)
		} else {
			summary, runErr = h.pipeline.Run(ctx)
		}
		if runErr != nil {
			h.logger.Error("triggered run failed", zap.Error(runErr))
			return
		}
		if err := h.exports.EnqueueRun(summary); err != nil {
			h.logger.Warn("run export not enqueued", zap.Error(err))
		}
	}()

	response.Accepted(c, dto.RunAcceptedResponse{Status: "accepted"})
}

// LatestRun returns the most recent run summary.
func (h *PipelineHandler) LatestRun(c *gin.Context) {
	summary := h.pipeline.LastSummary()
	if summary == nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// Health checks warehouse connectivity and reports component state.
// Always 200 while the process is serving; degraded components show in
// the body.
func (h *PipelineHandler) Health(c *gin.Context) {
	checks := map[string]string{"warehouse": "ok"}
	status := "ok"

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		checks["warehouse"] = err.Error()
		status = "degraded"
	}

	if h.cache.Enabled() {
		checks["cache"] = "ok"
	} else {
		checks["cache"] = "disabled"
	}
	if h.pipeline.Running() {
		checks["pipeline"] = "running"
	} else {
		checks["pipeline"] = "idle"
	}

	response.JSON(c, http.StatusOK, dto.HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC(),
	})
}
