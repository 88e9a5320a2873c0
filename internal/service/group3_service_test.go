package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edu-insight/lms-quality-etl/internal/models"
)

func group3Snapshot() models.CourseSnapshot {
	return models.CourseSnapshot{
		Activities: []models.ActivityRecord{
			{ID: 1, Module: "assign", Graded: true, MaxPoints: 10},
			{ID: 2, Module: "quiz", Graded: true, MaxPoints: 20},
		},
		Grades: []models.GradeRecord{
			{StudentID: 1, ActivityID: 1, Score: floatPtr(9.5), Feedback: "Solid work"},
			{StudentID: 2, ActivityID: 1, Score: floatPtr(9.0)}, // exactly 90%
			{StudentID: 3, ActivityID: 1, Score: floatPtr(8.9)},
			{StudentID: 1, ActivityID: 2, Score: floatPtr(10)},
			{StudentID: 2, ActivityID: 2, Feedback: "Please resubmit"},
		},
	}
}

func TestGroup3ExcellenceBoundaryIsInclusive(t *testing.T) {
	svc := NewGroup3Service(testFilterConfig())
	result := svc.Calculate(group3Snapshot())

	// 9.5 and 9.0 of 10 reach 90%; 8.9 and 10/20 do not. The ungraded
	// record on activity 2 is not a graded submission.
	v := result.Indicators[models.IndExcellence]
	assert.Equal(t, 2.0, v.Numerator)
	assert.Equal(t, 4.0, v.Denominator)
}

func TestGroup3FeedbackPerActivity(t *testing.T) {
	svc := NewGroup3Service(testFilterConfig())
	result := svc.Calculate(group3Snapshot())

	// Activity 1 has feedback on one graded submission; activity 2's
	// only feedback sits on an ungraded record and does not count.
	v := result.Indicators[models.IndFeedback]
	assert.Equal(t, 1.0, v.Numerator)
	assert.Equal(t, 2.0, v.Denominator)
}

func TestGroup3WhitespaceFeedbackIsNoFeedback(t *testing.T) {
	svc := NewGroup3Service(testFilterConfig())

	snapshot := group3Snapshot()
	for i := range snapshot.Grades {
		snapshot.Grades[i].Feedback = "   \n\t "
	}

	v := svc.Calculate(snapshot).Indicators[models.IndFeedback]
	assert.Equal(t, 0.0, v.Numerator)
}

func TestGroup3NoGradedSubmissionsIsUndefined(t *testing.T) {
	svc := NewGroup3Service(testFilterConfig())

	snapshot := models.CourseSnapshot{
		Activities: []models.ActivityRecord{
			{ID: 1, Module: "assign", Graded: true, MaxPoints: 10},
		},
	}

	result := svc.Calculate(snapshot)
	assert.Nil(t, result.Indicators[models.IndExcellence].Percent())

	// The feedback denominator counts graded activities, which exist.
	v := result.Indicators[models.IndFeedback]
	assert.Equal(t, 0.0, v.Numerator)
	assert.Equal(t, 1.0, v.Denominator)
}
