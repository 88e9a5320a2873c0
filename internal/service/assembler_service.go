package service

import (
	"fmt"
	"time"

	"github.com/edu-insight/lms-quality-etl/internal/models"
	appErrors "github.com/edu-insight/lms-quality-etl/pkg/errors"
)

// AssemblerService merges the three indicator-group results with the
// course and period identity into one canonical fact. It is a pure merge:
// a missing indicator code is a data-integrity fault and the assembler
// refuses to produce a fact rather than defaulting anything to zero.
type AssemblerService struct {
	now func() time.Time
}

// NewAssemblerService constructs the assembler. A nil clock defaults to
// time.Now in UTC.
func NewAssemblerService(now func() time.Time) *AssemblerService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &AssemblerService{now: now}
}

// Assemble builds the persisted fact for one admitted course.
func (s *AssemblerService) Assemble(
	snapshot models.CourseSnapshot,
	period models.PeriodKey,
	g1 models.Group1Result,
	g2 models.GroupResult,
	g3 models.GroupResult,
) (models.CourseFact, error) {
	if err := requireCodes(g1.Indicators, models.Group1Codes, "group1"); err != nil {
		return models.CourseFact{}, err
	}
	if err := requireCodes(g2.Indicators, models.Group2Codes, "group2"); err != nil {
		return models.CourseFact{}, err
	}
	if err := requireCodes(g3.Indicators, models.Group3Codes, "group3"); err != nil {
		return models.CourseFact{}, err
	}

	course := snapshot.Course
	return models.CourseFact{
		CourseID:   course.ID,
		CourseName: subjectName(course.FullName),
		Period:     period,
		Subject: models.SubjectDimension{
			ID:         subjectCode(course.ShortName),
			Name:       subjectName(course.FullName),
			Department: department(course.CategoryPath),
		},
		Instructor: models.InstructorDimension{
			ID:   course.InstructorID,
			Name: course.InstructorName,
		},

		Compliance:        g1.Indicators[models.IndCompliance],
		Approval:          g1.Indicators[models.IndApproval],
		Grades:            g1.Stats,
		Participation:     g1.Indicators[models.IndParticipation],
		Completion:        g1.Indicators[models.IndCompletion],
		ActiveMethodology: g2.Indicators[models.IndActiveMethodology],
		EvaluativeRatio:   g2.Indicators[models.IndEvaluativeRatio],
		Excellence:        g3.Indicators[models.IndExcellence],
		Feedback:          g3.Indicators[models.IndFeedback],

		StudentsProcessed: len(snapshot.ActiveLearnerIDs()),
		ComputedAt:        s.now(),
	}, nil
}

func requireCodes(got map[models.IndicatorCode]models.IndicatorValue, want []models.IndicatorCode, group string) error {
	for _, code := range want {
		if _, ok := got[code]; !ok {
			return appErrors.Wrap(
				fmt.Errorf("%s result missing indicator %s", group, code),
				appErrors.ErrIncompleteResult.Code,
				appErrors.ErrIncompleteResult.Status,
				appErrors.ErrIncompleteResult.Message,
			)
		}
	}
	return nil
}
