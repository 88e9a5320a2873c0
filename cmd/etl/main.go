package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edu-insight/lms-quality-etl/internal/client"
	"github.com/edu-insight/lms-quality-etl/internal/handler"
	"github.com/edu-insight/lms-quality-etl/internal/models"
	"github.com/edu-insight/lms-quality-etl/internal/repository"
	"github.com/edu-insight/lms-quality-etl/internal/service"
	"github.com/edu-insight/lms-quality-etl/pkg/cache"
	"github.com/edu-insight/lms-quality-etl/pkg/config"
	"github.com/edu-insight/lms-quality-etl/pkg/database"
	"github.com/edu-insight/lms-quality-etl/pkg/logger"
	reqidmiddleware "github.com/edu-insight/lms-quality-etl/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("warehouse connection failed", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	warehouse := repository.NewWarehouseRepository(db)
	metrics := service.NewMetricsService()

	// Snapshot caching is optional; a missing Redis degrades to direct
	// fetches, never to a failed startup.
	var snapshots *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, snapshot cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
			snapshots = service.NewCacheService(
				repository.NewCacheRepository(redisClient), metrics, cfg.Cache.TTL, logr, true)
		}
	}

	startTS, endTS, err := cfg.Filters.Window()
	if err != nil {
		logr.Fatal("invalid processing window", zap.Error(err))
	}
	window := models.DateWindow{Start: startTS, End: endTS}

	filter, err := service.NewFilterService(cfg.Filters)
	if err != nil {
		logr.Fatal("invalid filter configuration", zap.Error(err))
	}

	moodle := client.NewMoodleClient(cfg.Moodle, logr)
	reporter := service.NewReporterService(cfg.Pipeline.ReportBuffer, logr)
	exports := service.NewExportService(cfg.Exports, logr)

	pipeline := service.NewPipelineService(service.PipelineDeps{
		Source:    moodle,
		Writer:    warehouse,
		Periods:   service.NewPeriodService(time.UTC),
		Filter:    filter,
		Group1:    service.NewGroup1Service(cfg.Filters),
		Group2:    service.NewGroup2Service(),
		Group3:    service.NewGroup3Service(cfg.Filters),
		Assembler: service.NewAssemblerService(nil),
		Reporter:  reporter,
		Cache:     snapshots,
		Metrics:   metrics,
		Logger:    logr,
	}, cfg.Pipeline, window)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exports.Start(rootCtx)
	defer exports.Stop()

	go drainReports(rootCtx, reporter, logr)

	if cfg.Heartbeat.Enabled {
		heartbeat := service.NewHeartbeatService(warehouse, cfg.Heartbeat.Interval, logr)
		go heartbeat.Run(rootCtx)
	}

	if cfg.Pipeline.RunOnStartup {
		go func() {
			summary, err := pipeline.Run(rootCtx)
			if err != nil {
				logr.Error("startup run failed", zap.Error(err))
				return
			}
			if err := exports.EnqueueRun(summary); err != nil {
				logr.Warn("startup run export not enqueued", zap.Error(err))
			}
		}()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))

	ops := handler.NewPipelineHandler(pipeline, exports, snapshots, warehouse, logr)
	r.GET("/health", ops.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	ops.RegisterRoutes(r.Group(cfg.APIPrefix))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	reporter.Close()
}

// drainReports logs pipeline events as they arrive. The reporter drops
// on a full buffer, so draining can never stall a run.
func drainReports(ctx context.Context, reporter *service.ReporterService, logr *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case decision, ok := <-reporter.Decisions():
			if !ok {
				return
			}
			logr.Info("course decision",
				zap.Int64("course_id", decision.CourseID),
				zap.Bool("admitted", decision.Admitted),
				zap.String("reason", string(decision.FirstReason())),
			)
		case fact, ok := <-reporter.Facts():
			if !ok {
				return
			}
			logr.Info("fact persisted",
				zap.Int64("course_id", fact.CourseID),
				zap.String("course", fact.CourseName),
				zap.String("period", fact.Period.Name()),
				zap.Int("students", fact.Students),
			)
		}
	}
}
