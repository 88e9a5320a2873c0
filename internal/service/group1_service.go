package service

import (
	"math"
	"sort"

	"github.com/edu-insight/lms-quality-etl/internal/models"
	"github.com/edu-insight/lms-quality-etl/pkg/config"
)

// Group1Service computes the results indicators: 1.1 compliance, 1.2
// approval, 1.3 grade statistics, 1.4 participation and 1.5 completion.
// Only active-learner enrollments count toward denominators, grades are
// normalized to the 0-20 scale before threshold comparison, and every
// ratio is kept as a raw (numerator, denominator) pair.
type Group1Service struct {
	cfg config.FilterConfig
}

// NewGroup1Service constructs the results calculator.
func NewGroup1Service(cfg config.FilterConfig) *Group1Service {
	return &Group1Service{cfg: cfg}
}

// Calculate derives the group 1 indicators for one admitted course.
func (s *Group1Service) Calculate(snapshot models.CourseSnapshot) models.Group1Result {
	active := snapshot.ActiveLearnerIDs()

	eligible := make(map[int64]models.ActivityRecord)
	var totalWeight float64
	for _, a := range snapshot.Activities {
		if a.GradedEligible() {
			eligible[a.ID] = a
			totalWeight += a.Weight
		}
	}

	// Per-learner submission index over graded-eligible activities.
	submitted := make(map[int64]map[int64]bool)
	for _, g := range snapshot.Grades {
		if _, ok := active[g.StudentID]; !ok {
			continue
		}
		if _, ok := eligible[g.ActivityID]; !ok {
			continue
		}
		if !g.Submitted() {
			continue
		}
		if submitted[g.StudentID] == nil {
			submitted[g.StudentID] = make(map[int64]bool)
		}
		submitted[g.StudentID][g.ActivityID] = true
	}

	indicators := map[models.IndicatorCode]models.IndicatorValue{
		models.IndCompliance:    s.compliance(active, eligible, submitted),
		models.IndApproval:      s.approval(snapshot, active),
		models.IndParticipation: s.participation(snapshot, active, submitted),
		models.IndCompletion:    s.completion(active, eligible, submitted, totalWeight),
	}

	return models.Group1Result{
		Indicators: indicators,
		Stats:      s.gradeStats(snapshot, active),
	}
}

// compliance (1.1): submissions made over submissions possible, across
// all active learners and graded-eligible activities.
func (s *Group1Service) compliance(
	active map[int64]struct{},
	eligible map[int64]models.ActivityRecord,
	submitted map[int64]map[int64]bool,
) models.IndicatorValue {
	var made float64
	for studentID := range active {
		made += float64(len(submitted[studentID]))
	}
	return models.IndicatorValue{
		Numerator:   made,
		Denominator: float64(len(active) * len(eligible)),
	}
}

// approval (1.2): recorded final grades at or above the passing threshold
// over all recorded finals. The threshold boundary is inclusive.
func (s *Group1Service) approval(snapshot models.CourseSnapshot, active map[int64]struct{}) models.IndicatorValue {
	var passed, recorded float64
	for _, f := range snapshot.FinalGrades {
		if _, ok := active[f.StudentID]; !ok {
			continue
		}
		recorded++
		if f.Normalized() >= s.cfg.PassingGrade {
			passed++
		}
	}
	return models.IndicatorValue{Numerator: passed, Denominator: recorded}
}

// participation (1.4): active learners with at least one recorded access
// or submission over all active learners.
func (s *Group1Service) participation(
	snapshot models.CourseSnapshot,
	active map[int64]struct{},
	submitted map[int64]map[int64]bool,
) models.IndicatorValue {
	engaged := make(map[int64]bool)
	for _, e := range snapshot.Enrollments {
		if !e.Role.ActiveLearner() {
			continue
		}
		if e.LastAccess > 0 || len(submitted[e.StudentID]) > 0 {
			engaged[e.StudentID] = true
		}
	}
	return models.IndicatorValue{
		Numerator:   float64(len(engaged)),
		Denominator: float64(len(active)),
	}
}

// completion (1.5): learners whose submitted graded weight strictly
// exceeds the completion share over learners with any eligible activity.
func (s *Group1Service) completion(
	active map[int64]struct{},
	eligible map[int64]models.ActivityRecord,
	submitted map[int64]map[int64]bool,
	totalWeight float64,
) models.IndicatorValue {
	if len(eligible) == 0 || totalWeight <= 0 {
		return models.IndicatorValue{}
	}
	var finishers float64
	for studentID := range active {
		var covered float64
		for activityID := range submitted[studentID] {
			covered += eligible[activityID].Weight
		}
		if covered/totalWeight > s.cfg.CompletionShare {
			finishers++
		}
	}
	return models.IndicatorValue{
		Numerator:   finishers,
		Denominator: float64(len(active)),
	}
}

// gradeStats (1.3): mean, median and population standard deviation over
// recorded normalized finals. Learners without a recorded final are
// excluded, never imputed as zero.
func (s *Group1Service) gradeStats(snapshot models.CourseSnapshot, active map[int64]struct{}) models.GradeStats {
	grades := make([]float64, 0, len(snapshot.FinalGrades))
	for _, f := range snapshot.FinalGrades {
		if _, ok := active[f.StudentID]; !ok {
			continue
		}
		grades = append(grades, f.Normalized())
	}
	if len(grades) == 0 {
		return models.GradeStats{}
	}

	sort.Float64s(grades)

	var sum float64
	for _, g := range grades {
		sum += g
	}
	mean := sum / float64(len(grades))

	var variance float64
	for _, g := range grades {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(grades))

	n := len(grades)
	median := grades[n/2]
	if n%2 == 0 {
		median = (grades[n/2-1] + grades[n/2]) / 2
	}

	return models.GradeStats{
		Mean:   mean,
		Median: median,
		StdDev: math.Sqrt(variance),
		Count:  n,
	}
}
