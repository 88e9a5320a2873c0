package service

import (
	"sync"

	"go.uber.org/zap"

	"github.com/edu-insight/lms-quality-etl/internal/models"
)

// FactSummary is the per-course completion event consumed by progress
// displays.
type FactSummary struct {
	CourseID   int64            `json:"courseId"`
	CourseName string           `json:"courseName"`
	Period     models.PeriodKey `json:"period"`
	Students   int              `json:"students"`
}

// ReporterService fans out rejection decisions and completed fact
// summaries to progress consumers. Publishing is fire-and-forget: when a
// consumer lags and the buffer fills, events are dropped rather than
// blocking the pipeline.
type ReporterService struct {
	decisions chan models.FilterDecision
	facts     chan FactSummary
	logger    *zap.Logger

	mu      sync.Mutex
	dropped int
	closed  bool
}

// NewReporterService constructs a reporter with the given buffer size
// per stream.
func NewReporterService(buffer int, logger *zap.Logger) *ReporterService {
	if buffer <= 0 {
		buffer = 256
	}
	return &ReporterService{
		decisions: make(chan models.FilterDecision, buffer),
		facts:     make(chan FactSummary, buffer),
		logger:    logger,
	}
}

// Decisions exposes the stream of rejection decisions.
func (r *ReporterService) Decisions() <-chan models.FilterDecision {
	return r.decisions
}

// Facts exposes the stream of completed fact summaries.
func (r *ReporterService) Facts() <-chan FactSummary {
	return r.facts
}

// PublishDecision emits a rejection decision without blocking.
func (r *ReporterService) PublishDecision(decision models.FilterDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.decisions <- decision:
	default:
		r.drop()
	}
}

// PublishFact emits a completed fact summary without blocking.
func (r *ReporterService) PublishFact(summary FactSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.facts <- summary:
	default:
		r.drop()
	}
}

// Dropped returns the number of events discarded because consumers
// lagged.
func (r *ReporterService) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close ends both streams. Safe to call once consumers should drain.
func (r *ReporterService) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.decisions)
	close(r.facts)
}

func (r *ReporterService) drop() {
	r.dropped++
	if r.logger != nil && r.dropped%100 == 1 {
		r.logger.Warn("reporter dropping events, consumer lagging", zap.Int("dropped", r.dropped))
	}
}
