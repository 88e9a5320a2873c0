package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edu-insight/lms-quality-etl/internal/models"
	appErrors "github.com/edu-insight/lms-quality-etl/pkg/errors"
)

func completeGroupResults() (models.Group1Result, models.GroupResult, models.GroupResult) {
	g1 := models.Group1Result{
		Indicators: map[models.IndicatorCode]models.IndicatorValue{
			models.IndCompliance:    {Numerator: 6, Denominator: 10},
			models.IndApproval:      {Numerator: 3, Denominator: 5},
			models.IndParticipation: {Numerator: 4, Denominator: 5},
			models.IndCompletion:    {Numerator: 3, Denominator: 5},
		},
		Stats: models.GradeStats{Mean: 11.18, Median: 9.5, StdDev: 4.35, Count: 5},
	}
	g2 := models.GroupResult{
		Indicators: map[models.IndicatorCode]models.IndicatorValue{
			models.IndActiveMethodology: {Numerator: 3, Denominator: 2},
			models.IndEvaluativeRatio:   {Numerator: 2, Denominator: 3},
		},
	}
	g3 := models.GroupResult{
		Indicators: map[models.IndicatorCode]models.IndicatorValue{
			models.IndExcellence: {Numerator: 2, Denominator: 4},
			models.IndFeedback:   {Numerator: 1, Denominator: 2},
		},
	}
	return g1, g2, g3
}

func TestAssemblerBuildsFact(t *testing.T) {
	fixed := time.Date(2025, time.December, 1, 10, 0, 0, 0, time.UTC)
	svc := NewAssemblerService(func() time.Time { return fixed })

	snapshot := admissibleSnapshot()
	snapshot.Course.FullName = "Linear Algebra - A. Turing"
	snapshot.Course.InstructorID = 77
	snapshot.Course.InstructorName = "A. Turing"

	g1, g2, g3 := completeGroupResults()
	fact, err := svc.Assemble(snapshot, *testPeriod(), g1, g2, g3)
	require.NoError(t, err)

	assert.Equal(t, int64(42), fact.CourseID)
	assert.Equal(t, "25261", fact.Period.ID())
	assert.Equal(t, "ALG101", fact.Subject.ID)
	assert.Equal(t, "Linear Algebra", fact.Subject.Name)
	assert.Equal(t, "Mathematics", fact.Subject.Department)
	assert.Equal(t, int64(77), fact.Instructor.ID)
	assert.Equal(t, 5, fact.StudentsProcessed)
	assert.Equal(t, fixed, fact.ComputedAt)
	assert.Equal(t, 6.0, fact.Compliance.Numerator)
	assert.Equal(t, 5, fact.Grades.Count)
}

func TestAssemblerRefusesIncompleteGroups(t *testing.T) {
	svc := NewAssemblerService(nil)
	snapshot := admissibleSnapshot()

	g1, g2, g3 := completeGroupResults()
	delete(g3.Indicators, models.IndFeedback)

	_, err := svc.Assemble(snapshot, *testPeriod(), g1, g2, g3)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIncompleteResult.Code, appErrors.FromError(err).Code)
}

func TestAssemblerNamingFallbacks(t *testing.T) {
	svc := NewAssemblerService(nil)
	snapshot := admissibleSnapshot()
	snapshot.Course.ShortName = ""
	snapshot.Course.FullName = ""
	snapshot.Course.CategoryPath = ""

	g1, g2, g3 := completeGroupResults()
	fact, err := svc.Assemble(snapshot, *testPeriod(), g1, g2, g3)
	require.NoError(t, err)

	assert.Equal(t, "NO_CODE", fact.Subject.ID)
	assert.Equal(t, "UNNAMED", fact.Subject.Name)
	assert.Equal(t, "OTHER", fact.Subject.Department)
}
