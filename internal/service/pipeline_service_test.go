package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edu-insight/lms-quality-etl/internal/models"
	"github.com/edu-insight/lms-quality-etl/pkg/config"
	appErrors "github.com/edu-insight/lms-quality-etl/pkg/errors"
)

type fakeSource struct {
	mu        sync.Mutex
	courses   []models.CourseRecord
	snapshots map[int64]models.CourseSnapshot
	failFetch map[int64]error
	listErr   error
	listGate  chan struct{}
	fetches   int
}

func (f *fakeSource) ListCourses(ctx context.Context) ([]models.CourseRecord, error) {
	if f.listGate != nil {
		select {
		case <-f.listGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.courses, nil
}

func (f *fakeSource) FetchSnapshot(ctx context.Context, course models.CourseRecord) (models.CourseSnapshot, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if err := f.failFetch[course.ID]; err != nil {
		return models.CourseSnapshot{}, err
	}
	return f.snapshots[course.ID], nil
}

type fakeWriter struct {
	mu    sync.Mutex
	facts []models.CourseFact
	err   error
}

func (f *fakeWriter) Persist(ctx context.Context, fact models.CourseFact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.facts = append(f.facts, fact)
	return nil
}

func (f *fakeWriter) persisted() []models.CourseFact {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CourseFact, len(f.facts))
	copy(out, f.facts)
	return out
}

func newTestPipeline(t *testing.T, source CourseSource, writer FactWriter) *PipelineService {
	t.Helper()
	cfg := testFilterConfig()
	filter, err := NewFilterService(cfg)
	require.NoError(t, err)

	return NewPipelineService(PipelineDeps{
		Source:    source,
		Writer:    writer,
		Periods:   NewPeriodService(time.UTC),
		Filter:    filter,
		Group1:    NewGroup1Service(cfg),
		Group2:    NewGroup2Service(),
		Group3:    NewGroup3Service(cfg),
		Assembler: NewAssemblerService(nil),
		Reporter:  NewReporterService(64, zap.NewNop()),
		Metrics:   NewMetricsService(),
		Logger:    zap.NewNop(),
	}, config.PipelineConfig{Workers: 2}, testWindow())
}

// smallCourseSnapshot is inadmissible: two learners.
func smallCourseSnapshot(id int64) models.CourseSnapshot {
	snapshot := admissibleSnapshot()
	snapshot.Course.ID = id
	snapshot.Enrollments = snapshot.Enrollments[:2]
	return snapshot
}

func TestPipelineRunIsolatesFaultsAndRejections(t *testing.T) {
	good := admissibleSnapshot()
	source := &fakeSource{
		courses: []models.CourseRecord{
			good.Course,
			{ID: 50, FullName: "Tiny 2526-1", StartDate: good.Course.StartDate, SectionCount: 4},
			{ID: 60, FullName: "Broken 2526-1", StartDate: good.Course.StartDate, SectionCount: 4},
		},
		snapshots: map[int64]models.CourseSnapshot{
			good.Course.ID: good,
			50:             smallCourseSnapshot(50),
		},
		failFetch: map[int64]error{60: errors.New("gateway timeout")},
	}
	writer := &fakeWriter{}
	pipeline := newTestPipeline(t, source, writer)

	summary, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, summary.Status)
	assert.Equal(t, 3, summary.Discovered)
	assert.Equal(t, 1, summary.Admitted)
	assert.Equal(t, 1, summary.Persisted)
	assert.Equal(t, 1, summary.Faults)
	assert.Equal(t, 1, summary.Rejected[models.ReasonInsufficientPopulation])

	facts := writer.persisted()
	require.Len(t, facts, 1)
	assert.Equal(t, good.Course.ID, facts[0].CourseID)
	assert.Equal(t, "25261", facts[0].Period.ID())
	assert.NotEmpty(t, summary.RunID)
}

func TestPipelineReplayProducesIdenticalKeys(t *testing.T) {
	good := admissibleSnapshot()
	source := &fakeSource{
		courses:   []models.CourseRecord{good.Course},
		snapshots: map[int64]models.CourseSnapshot{good.Course.ID: good},
	}
	writer := &fakeWriter{}
	pipeline := newTestPipeline(t, source, writer)

	first, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	second, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)

	// Same course, same window: both passes target the same warehouse
	// key, so a replay updates in place rather than duplicating.
	facts := writer.persisted()
	require.Len(t, facts, 2)
	assert.Equal(t, facts[0].CourseID, facts[1].CourseID)
	assert.Equal(t, facts[0].Period.ID(), facts[1].Period.ID())
	assert.Equal(t, facts[0].Compliance, facts[1].Compliance)
	assert.Equal(t, facts[0].Grades, facts[1].Grades)
}

func TestPipelinePersistFailureIsAFault(t *testing.T) {
	good := admissibleSnapshot()
	source := &fakeSource{
		courses:   []models.CourseRecord{good.Course},
		snapshots: map[int64]models.CourseSnapshot{good.Course.ID: good},
	}
	writer := &fakeWriter{err: errors.New("connection reset")}
	pipeline := newTestPipeline(t, source, writer)

	summary, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.Admitted)
	assert.Equal(t, 0, summary.Persisted)
	assert.Equal(t, 1, summary.Faults)
}

func TestPipelineListFailureFailsRun(t *testing.T) {
	source := &fakeSource{listErr: errors.New("token expired")}
	pipeline := newTestPipeline(t, source, &fakeWriter{})

	summary, err := pipeline.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, summary.Status)
}

func TestPipelineRejectsConcurrentRuns(t *testing.T) {
	gate := make(chan struct{})
	source := &fakeSource{listGate: gate}
	pipeline := newTestPipeline(t, source, &fakeWriter{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = pipeline.Run(context.Background())
	}()

	// Wait until the first run holds the slot.
	require.Eventually(t, pipeline.Running, time.Second, 5*time.Millisecond)

	_, err := pipeline.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRunInProgress.Code, appErrors.FromError(err).Code)

	close(gate)
	<-done
	assert.False(t, pipeline.Running())
}

func TestPipelineRejectionSkipsDownstreamWork(t *testing.T) {
	small := smallCourseSnapshot(50)
	source := &fakeSource{
		courses:   []models.CourseRecord{small.Course},
		snapshots: map[int64]models.CourseSnapshot{50: small},
	}
	writer := &fakeWriter{}
	pipeline := newTestPipeline(t, source, writer)

	summary, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Admitted)
	assert.Empty(t, writer.persisted())
	assert.Equal(t, 1, summary.Rejected[models.ReasonInsufficientPopulation])
}

func TestPipelineLastSummary(t *testing.T) {
	good := admissibleSnapshot()
	source := &fakeSource{
		courses:   []models.CourseRecord{good.Course},
		snapshots: map[int64]models.CourseSnapshot{good.Course.ID: good},
	}
	pipeline := newTestPipeline(t, source, &fakeWriter{})

	assert.Nil(t, pipeline.LastSummary())

	summary, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	last := pipeline.LastSummary()
	require.NotNil(t, last)
	assert.Equal(t, summary.RunID, last.RunID)
	assert.Equal(t, models.RunStatusCompleted, last.Status)
}
