package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edu-insight/lms-quality-etl/internal/models"
	"github.com/edu-insight/lms-quality-etl/pkg/config"
	appErrors "github.com/edu-insight/lms-quality-etl/pkg/errors"
)

// maxWorkers caps the pool regardless of host size to stay inside the
// source platform's and warehouse's connection limits.
const maxWorkers = 8

// CourseSource supplies normalized course data from the source platform.
// Implementations own pagination, retries and timeouts; the pipeline
// assumes complete-or-failed snapshots.
type CourseSource interface {
	ListCourses(ctx context.Context) ([]models.CourseRecord, error)
	FetchSnapshot(ctx context.Context, course models.CourseRecord) (models.CourseSnapshot, error)
}

// FactWriter persists assembled facts.
type FactWriter interface {
	Persist(ctx context.Context, fact models.CourseFact) error
}

// PipelineService orchestrates one full extract-transform-load pass. The
// per-course transform is stateless and embarrassingly parallel; workers
// share nothing but the warehouse, whose upserts are atomic per key.
type PipelineService struct {
	source    CourseSource
	writer    FactWriter
	periods   *PeriodService
	filter    *FilterService
	group1    *Group1Service
	group2    *Group2Service
	group3    *Group3Service
	assembler *AssemblerService
	reporter  *ReporterService
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger

	window  models.DateWindow
	workers int

	mu      sync.Mutex
	running bool
	last    *models.RunSummary
}

// PipelineDeps bundles the pipeline collaborators.
type PipelineDeps struct {
	Source    CourseSource
	Writer    FactWriter
	Periods   *PeriodService
	Filter    *FilterService
	Group1    *Group1Service
	Group2    *Group2Service
	Group3    *Group3Service
	Assembler *AssemblerService
	Reporter  *ReporterService
	Cache     *CacheService
	Metrics   *MetricsService
	Logger    *zap.Logger
}

// NewPipelineService constructs the pipeline.
func NewPipelineService(deps PipelineDeps, cfg config.PipelineConfig, window models.DateWindow) *PipelineService {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}

	return &PipelineService{
		source:    deps.Source,
		writer:    deps.Writer,
		periods:   deps.Periods,
		filter:    deps.Filter,
		group1:    deps.Group1,
		group2:    deps.Group2,
		group3:    deps.Group3,
		assembler: deps.Assembler,
		reporter:  deps.Reporter,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		window:    window,
		workers:   workers,
	}
}

// Running reports whether a run is in flight.
func (s *PipelineService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastSummary returns the most recent run summary, if any.
func (s *PipelineService) LastSummary() *models.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	copied := *s.last
	return &copied
}

// Run executes one full pipeline pass over the configured window.
func (s *PipelineService) Run(ctx context.Context) (models.RunSummary, error) {
	return s.RunWindow(ctx, s.window)
}

// RunWindow executes one full pipeline pass over an explicit window. Only
// one run may be in flight at a time. Per-course failures are isolated:
// no single course aborts the run.
func (s *PipelineService) RunWindow(ctx context.Context, window models.DateWindow) (models.RunSummary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return models.RunSummary{}, appErrors.ErrRunInProgress
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	started := time.Now().UTC()
	summary := models.RunSummary{
		RunID:     uuid.NewString(),
		Status:    models.RunStatusRunning,
		Window:    window,
		Rejected:  make(map[models.RejectReason]int),
		StartedAt: started,
	}

	s.logger.Info("pipeline run starting",
		zap.String("run_id", summary.RunID),
		zap.Int64("window_start", window.Start),
		zap.Int64("window_end", window.End),
		zap.Int("workers", s.workers),
	)

	courses, err := s.source.ListCourses(ctx)
	if err != nil {
		summary.Status = models.RunStatusFailed
		summary.FinishedAt = time.Now().UTC()
		s.store(summary)
		return summary, err
	}
	summary.Discovered = len(courses)

	results := make(chan courseOutcome, len(courses))
	queue := make(chan models.CourseRecord)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for course := range queue {
				results <- s.processCourse(ctx, window, course)
			}
		}()
	}

dispatch:
	for _, course := range courses {
		select {
		case <-ctx.Done():
			break dispatch
		case queue <- course:
		}
	}
	close(queue)
	wg.Wait()
	close(results)

	for outcome := range results {
		switch {
		case outcome.rejected != nil:
			summary.Rejected[outcome.rejected.FirstReason()]++
		case outcome.err != nil:
			summary.Faults++
			if outcome.admitted {
				summary.Admitted++
			}
		default:
			summary.Admitted++
			summary.Persisted++
			summary.Facts = append(summary.Facts, *outcome.fact)
		}
	}

	summary.FinishedAt = time.Now().UTC()
	if ctx.Err() != nil {
		summary.Status = models.RunStatusCancelled
	} else {
		summary.Status = models.RunStatusCompleted
	}
	s.metrics.ObserveRun(summary.FinishedAt.Sub(started))
	s.store(summary)

	s.logger.Info("pipeline run finished",
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)),
		zap.Int("discovered", summary.Discovered),
		zap.Int("admitted", summary.Admitted),
		zap.Int("persisted", summary.Persisted),
		zap.Int("faults", summary.Faults),
	)
	return summary, ctx.Err()
}

type courseOutcome struct {
	courseID int64
	admitted bool
	fact     *models.CourseFact
	rejected *models.FilterDecision
	err      error
}

// processCourse runs the full transform for one course: fetch, resolve,
// filter, calculate, assemble, persist. Rejection short-circuits all
// downstream work for the course.
func (s *PipelineService) processCourse(ctx context.Context, window models.DateWindow, course models.CourseRecord) courseOutcome {
	snapshot, hit := s.cache.GetSnapshot(ctx, course.ID, window)
	if !hit {
		fetchStart := time.Now()
		fetched, err := s.source.FetchSnapshot(ctx, course)
		s.metrics.ObserveFetch(time.Since(fetchStart))
		if err != nil {
			s.logger.Error("snapshot fetch failed",
				zap.Int64("course_id", course.ID), zap.Error(err))
			return courseOutcome{courseID: course.ID, err: err}
		}
		snapshot = fetched
		s.cache.SetSnapshot(ctx, window, snapshot)
	}

	var period *models.PeriodKey
	if resolved, err := s.periods.Resolve(course.FullName, course.StartDate); err == nil {
		period = &resolved
	}

	decision := s.filter.Evaluate(snapshot, period, window)
	s.metrics.ObserveCourse(decision.Admitted, decision.FirstReason())
	if !decision.Admitted {
		s.reporter.PublishDecision(decision)
		s.logger.Debug("course rejected",
			zap.Int64("course_id", course.ID),
			zap.String("reason", string(decision.FirstReason())),
		)
		return courseOutcome{courseID: course.ID, rejected: &decision}
	}

	g1 := s.group1.Calculate(snapshot)
	g2 := s.group2.Calculate(snapshot)
	g3 := s.group3.Calculate(snapshot)

	fact, err := s.assembler.Assemble(snapshot, *period, g1, g2, g3)
	if err != nil {
		// Data-integrity fault: louder than a rejection, isolated to
		// this course.
		s.metrics.ObserveIntegrityFault()
		s.logger.Warn("fact withheld, incomplete indicator result",
			zap.Int64("course_id", course.ID), zap.Error(err))
		return courseOutcome{courseID: course.ID, admitted: true, err: err}
	}

	persistStart := time.Now()
	err = s.writer.Persist(ctx, fact)
	s.metrics.ObservePersistence(time.Since(persistStart), err)
	if err != nil {
		s.logger.Error("fact upsert failed",
			zap.Int64("course_id", course.ID), zap.Error(err))
		return courseOutcome{courseID: course.ID, admitted: true, err: err}
	}

	s.reporter.PublishFact(FactSummary{
		CourseID:   fact.CourseID,
		CourseName: fact.CourseName,
		Period:     fact.Period,
		Students:   fact.StudentsProcessed,
	})
	return courseOutcome{courseID: course.ID, fact: &fact}
}

func (s *PipelineService) store(summary models.RunSummary) {
	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()
}
