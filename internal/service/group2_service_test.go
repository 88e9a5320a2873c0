package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edu-insight/lms-quality-etl/internal/models"
)

func TestGroup2CountsOnlyVisibleActivities(t *testing.T) {
	svc := NewGroup2Service()

	snapshot := models.CourseSnapshot{
		Activities: []models.ActivityRecord{
			{ID: 1, Module: "assign", Kind: models.ActivityInteractive, Visible: true, Graded: true},
			{ID: 2, Module: "quiz", Kind: models.ActivityInteractive, Visible: true, Graded: true},
			{ID: 3, Module: "forum", Kind: models.ActivityInteractive, Visible: true},
			{ID: 4, Module: "resource", Kind: models.ActivityStatic, Visible: true},
			{ID: 5, Module: "url", Kind: models.ActivityStatic, Visible: true},
			// Hidden activities never reach students and never count.
			{ID: 6, Module: "assign", Kind: models.ActivityInteractive, Visible: false, Graded: true},
			{ID: 7, Module: "page", Kind: models.ActivityStatic, Visible: false},
		},
	}

	result := svc.Calculate(snapshot)

	methodology := result.Indicators[models.IndActiveMethodology]
	assert.Equal(t, 3.0, methodology.Numerator)
	assert.Equal(t, 2.0, methodology.Denominator)

	evaluative := result.Indicators[models.IndEvaluativeRatio]
	assert.Equal(t, 2.0, evaluative.Numerator)
	assert.Equal(t, 3.0, evaluative.Denominator)
}

func TestGroup2AllInteractiveIsUndefinedRatio(t *testing.T) {
	svc := NewGroup2Service()

	snapshot := models.CourseSnapshot{
		Activities: []models.ActivityRecord{
			{ID: 1, Module: "assign", Kind: models.ActivityInteractive, Visible: true, Graded: true},
			{ID: 2, Module: "quiz", Kind: models.ActivityInteractive, Visible: true, Graded: true},
		},
	}

	result := svc.Calculate(snapshot)

	// No static content: the ratio is undefined, not infinite.
	methodology := result.Indicators[models.IndActiveMethodology]
	assert.Equal(t, 2.0, methodology.Numerator)
	assert.Nil(t, methodology.Percent())

	// No formative activities either.
	assert.Nil(t, result.Indicators[models.IndEvaluativeRatio].Percent())
}

func TestGroup2EmptyCourse(t *testing.T) {
	svc := NewGroup2Service()
	result := svc.Calculate(models.CourseSnapshot{})

	assert.Nil(t, result.Indicators[models.IndActiveMethodology].Percent())
	assert.Nil(t, result.Indicators[models.IndEvaluativeRatio].Percent())
}
