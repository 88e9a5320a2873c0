package service

import (
	"github.com/edu-insight/lms-quality-etl/internal/models"
)

// Group2Service computes the instructional-design indicators: 2.1 active
// methodology and 2.2 evaluative ratio. Only activities visible to
// students count; a zero denominator is an explicit undefined state,
// never infinity.
type Group2Service struct{}

// NewGroup2Service constructs the design calculator.
func NewGroup2Service() *Group2Service {
	return &Group2Service{}
}

// Calculate derives the group 2 indicators for one admitted course.
func (s *Group2Service) Calculate(snapshot models.CourseSnapshot) models.GroupResult {
	var interactive, static, graded, formative float64
	for _, a := range snapshot.Activities {
		if !a.Visible {
			continue
		}

		if a.Kind == models.ActivityInteractive {
			interactive++
		} else {
			static++
		}

		if a.Graded {
			graded++
		} else {
			formative++
		}
	}

	return models.GroupResult{
		Indicators: map[models.IndicatorCode]models.IndicatorValue{
			models.IndActiveMethodology: {Numerator: interactive, Denominator: static},
			models.IndEvaluativeRatio:   {Numerator: graded, Denominator: formative},
		},
	}
}
