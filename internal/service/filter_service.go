package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/edu-insight/lms-quality-etl/internal/models"
	"github.com/edu-insight/lms-quality-etl/pkg/config"
)

// FilterService evaluates the layered course-admissibility rules. Rules
// run in a fixed order and every rule is evaluated even after a failure,
// so each decision carries a full audit trail. Admission is binary: a
// course is admitted iff all five rules pass.
type FilterService struct {
	cfg     config.FilterConfig
	include *regexp.Regexp
}

// NewFilterService constructs the filter. An invalid include pattern is
// rejected up front so every later decision stays deterministic.
func NewFilterService(cfg config.FilterConfig) (*FilterService, error) {
	var include *regexp.Regexp
	if cfg.IncludePattern != "" {
		compiled, err := regexp.Compile(cfg.IncludePattern)
		if err != nil {
			return nil, fmt.Errorf("compile include pattern: %w", err)
		}
		include = compiled
	}
	return &FilterService{cfg: cfg, include: include}, nil
}

// Evaluate runs all admissibility rules against the snapshot. The period
// argument is the course's resolved academic period, nil when resolution
// failed; resolution failure is attributed to the date-range rule. The
// window is passed per run so ad-hoc runs can narrow it.
func (s *FilterService) Evaluate(snapshot models.CourseSnapshot, period *models.PeriodKey, window models.DateWindow) models.FilterDecision {
	rules := []models.RuleResult{
		s.checkPopulation(snapshot),
		s.checkIntegrity(snapshot),
		s.checkHierarchy(snapshot.Course),
		s.checkCategory(snapshot.Course),
		s.checkDateRange(snapshot.Course, period, window),
	}

	admitted := true
	for _, r := range rules {
		if !r.Passed {
			admitted = false
		}
	}

	return models.FilterDecision{
		CourseID: snapshot.Course.ID,
		Admitted: admitted,
		Rules:    rules,
	}
}

// checkPopulation requires enough active learners for the indicators to
// be statistically stable.
func (s *FilterService) checkPopulation(snapshot models.CourseSnapshot) models.RuleResult {
	active := len(snapshot.ActiveLearnerIDs())
	if active < s.cfg.MinPopulation {
		return models.RuleResult{
			Rule:   models.RulePopulation,
			Reason: models.ReasonInsufficientPopulation,
			Detail: fmt.Sprintf("%d active learners, need %d", active, s.cfg.MinPopulation),
		}
	}
	return models.RuleResult{
		Rule:   models.RulePopulation,
		Passed: true,
		Detail: fmt.Sprintf("%d active learners", active),
	}
}

// checkIntegrity bounds the share of graded-eligible activities that
// carry no grade at all. The configured maximum is inclusive. A course
// with no graded-eligible activities passes; its grading indicators end
// up undefined rather than distorted.
func (s *FilterService) checkIntegrity(snapshot models.CourseSnapshot) models.RuleResult {
	gradedByActivity := make(map[int64]bool)
	for _, g := range snapshot.Grades {
		if g.Score != nil {
			gradedByActivity[g.ActivityID] = true
		}
	}

	eligible, empty := 0, 0
	for _, a := range snapshot.Activities {
		if !a.GradedEligible() {
			continue
		}
		eligible++
		if !gradedByActivity[a.ID] {
			empty++
		}
	}

	if eligible == 0 {
		return models.RuleResult{
			Rule:   models.RuleIntegrity,
			Passed: true,
			Detail: "no graded-eligible activities",
		}
	}

	share := float64(empty) / float64(eligible)
	if share > s.cfg.MaxUngradedShare {
		return models.RuleResult{
			Rule:   models.RuleIntegrity,
			Reason: models.ReasonUngradedOverload,
			Detail: fmt.Sprintf("%.0f%% of %d graded-eligible activities are empty", share*100, eligible),
		}
	}
	return models.RuleResult{
		Rule:   models.RuleIntegrity,
		Passed: true,
		Detail: fmt.Sprintf("%d of %d graded-eligible activities empty", empty, eligible),
	}
}

// checkHierarchy rejects single-section shells; an unstructured course is
// usually an unconfigured or administrative space.
func (s *FilterService) checkHierarchy(course models.CourseRecord) models.RuleResult {
	if course.SectionCount <= 1 {
		return models.RuleResult{
			Rule:   models.RuleHierarchy,
			Reason: models.ReasonFlatHierarchy,
			Detail: fmt.Sprintf("%d structural sections", course.SectionCount),
		}
	}
	return models.RuleResult{
		Rule:   models.RuleHierarchy,
		Passed: true,
		Detail: fmt.Sprintf("%d structural sections", course.SectionCount),
	}
}

// checkCategory excludes sandbox, template and administrative courses by
// name keyword and category path, and optionally requires an inclusion
// pattern match.
func (s *FilterService) checkCategory(course models.CourseRecord) models.RuleResult {
	nameUpper := strings.ToUpper(course.FullName)
	for _, keyword := range s.cfg.ExcludedKeywords {
		if strings.Contains(nameUpper, strings.ToUpper(keyword)) {
			return models.RuleResult{
				Rule:   models.RuleCategory,
				Reason: models.ReasonCategoryExcluded,
				Detail: fmt.Sprintf("name contains excluded keyword %q", keyword),
			}
		}
	}

	pathUpper := strings.ToUpper(course.CategoryPath)
	for _, dept := range s.cfg.ExcludedDepartments {
		if strings.Contains(pathUpper, strings.ToUpper(dept)) {
			return models.RuleResult{
				Rule:   models.RuleCategory,
				Reason: models.ReasonCategoryExcluded,
				Detail: fmt.Sprintf("category path contains excluded department %q", dept),
			}
		}
	}

	if s.include != nil && !s.include.MatchString(course.FullName) {
		return models.RuleResult{
			Rule:   models.RuleCategory,
			Reason: models.ReasonCategoryExcluded,
			Detail: "name does not match inclusion pattern",
		}
	}

	return models.RuleResult{Rule: models.RuleCategory, Passed: true}
}

// checkDateRange requires a resolved academic period and a course start
// inside the inclusive processing window.
func (s *FilterService) checkDateRange(course models.CourseRecord, period *models.PeriodKey, window models.DateWindow) models.RuleResult {
	if period == nil {
		return models.RuleResult{
			Rule:   models.RuleDateRange,
			Reason: models.ReasonOutOfRange,
			Detail: "academic period unresolved",
		}
	}
	if !window.Contains(course.StartDate) {
		return models.RuleResult{
			Rule:   models.RuleDateRange,
			Reason: models.ReasonOutOfRange,
			Detail: fmt.Sprintf("start %d outside processing window", course.StartDate),
		}
	}
	return models.RuleResult{
		Rule:   models.RuleDateRange,
		Passed: true,
		Detail: period.Name(),
	}
}
