package service

import (
	"strings"

	"github.com/edu-insight/lms-quality-etl/internal/models"
	"github.com/edu-insight/lms-quality-etl/pkg/config"
)

// Group3Service computes the grading-behavior indicators: 3.1 excellence
// and 3.2 feedback.
type Group3Service struct {
	cfg config.FilterConfig
}

// NewGroup3Service constructs the behavior calculator.
func NewGroup3Service(cfg config.FilterConfig) *Group3Service {
	return &Group3Service{cfg: cfg}
}

// Calculate derives the group 3 indicators for one admitted course.
func (s *Group3Service) Calculate(snapshot models.CourseSnapshot) models.GroupResult {
	eligible := make(map[int64]models.ActivityRecord)
	gradedActivities := 0
	for _, a := range snapshot.Activities {
		if a.Graded {
			gradedActivities++
		}
		if a.GradedEligible() {
			eligible[a.ID] = a
		}
	}

	var gradedSubmissions, excellent float64
	withFeedback := make(map[int64]bool)
	for _, g := range snapshot.Grades {
		activity, ok := eligible[g.ActivityID]
		if !ok || g.Score == nil {
			continue
		}

		gradedSubmissions++
		// Excellence boundary is inclusive: exactly 90% of max counts.
		if *g.Score >= s.cfg.ExcellenceShare*activity.MaxPoints {
			excellent++
		}

		// Whitespace-only feedback is no feedback.
		if strings.TrimSpace(g.Feedback) != "" {
			withFeedback[g.ActivityID] = true
		}
	}

	return models.GroupResult{
		Indicators: map[models.IndicatorCode]models.IndicatorValue{
			models.IndExcellence: {Numerator: excellent, Denominator: gradedSubmissions},
			models.IndFeedback: {
				Numerator:   float64(len(withFeedback)),
				Denominator: float64(gradedActivities),
			},
		},
	}
}
