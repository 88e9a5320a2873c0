package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edu-insight/lms-quality-etl/internal/models"
	appErrors "github.com/edu-insight/lms-quality-etl/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService caches normalized course snapshots so replays over an
// overlapping window within the TTL skip upstream fetches. Cache
// failures degrade to a miss; they never fail a run.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// GetSnapshot attempts to retrieve a cached snapshot for the course and
// window. Returns true on a hit.
func (s *CacheService) GetSnapshot(ctx context.Context, courseID int64, window models.DateWindow) (models.CourseSnapshot, bool) {
	var snapshot models.CourseSnapshot
	if !s.Enabled() {
		return snapshot, false
	}

	err := s.repo.Get(ctx, snapshotKey(courseID, window), &snapshot)
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) && s.logger != nil {
			s.logger.Warn("snapshot cache get failed", zap.Int64("course_id", courseID), zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
		return models.CourseSnapshot{}, false
	}

	s.metrics.RecordCacheOperation(true)
	return snapshot, true
}

// SetSnapshot stores the snapshot for later replays.
func (s *CacheService) SetSnapshot(ctx context.Context, window models.DateWindow, snapshot models.CourseSnapshot) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.Set(ctx, snapshotKey(snapshot.Course.ID, window), snapshot, s.ttl); err != nil && s.logger != nil {
		s.logger.Warn("snapshot cache set failed", zap.Int64("course_id", snapshot.Course.ID), zap.Error(err))
	}
}

// Invalidate drops every cached snapshot.
func (s *CacheService) Invalidate(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.repo.DeleteByPattern(ctx, "snapshot:*")
}

func snapshotKey(courseID int64, window models.DateWindow) string {
	return fmt.Sprintf("snapshot:%d:%d:%d", courseID, window.Start, window.End)
}
