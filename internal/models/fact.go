package models

import "time"

// TimeDimension is the academic-period dimension row. Attributes are a
// pure function of the natural key, so re-supplying them is a no-op.
type TimeDimension struct {
	ID     string `db:"time_id"`
	Name   string `db:"period_name"`
	Year   int    `db:"year"`
	Term   string `db:"term"`
	TermIx int    `db:"term_index"`
}

// InstructorDimension is the instructor dimension row.
type InstructorDimension struct {
	ID   int64  `db:"instructor_id"`
	Name string `db:"instructor_name"`
}

// SubjectDimension is the subject dimension row.
type SubjectDimension struct {
	ID         string `db:"subject_id"`
	Name       string `db:"subject_name"`
	Department string `db:"department"`
}

// CourseFact is the persisted unit: course identity, period, the nine
// indicator slots and the computation timestamp. Facts are created fresh
// each run and upserted keyed on (course_id, period_id); this core never
// deletes them.
type CourseFact struct {
	CourseID   int64
	CourseName string
	Period     PeriodKey
	Subject    SubjectDimension
	Instructor InstructorDimension

	Compliance        IndicatorValue // 1.1
	Approval          IndicatorValue // 1.2
	Grades            GradeStats     // 1.3
	Participation     IndicatorValue // 1.4
	Completion        IndicatorValue // 1.5
	ActiveMethodology IndicatorValue // 2.1
	EvaluativeRatio   IndicatorValue // 2.2
	Excellence        IndicatorValue // 3.1
	Feedback          IndicatorValue // 3.2

	StudentsProcessed int
	ComputedAt        time.Time
}

// TimeRow derives the time dimension row referenced by the fact.
func (f CourseFact) TimeRow() TimeDimension {
	return TimeDimension{
		ID:     f.Period.ID(),
		Name:   f.Period.Name(),
		Year:   f.Period.Year,
		Term:   f.Period.TermLabel,
		TermIx: f.Period.TermIndex,
	}
}

// Ratios returns the eight ratio indicators keyed by code. The 1.3 grade
// statistics are descriptive moments, not a ratio, and are excluded.
func (f CourseFact) Ratios() map[IndicatorCode]IndicatorValue {
	return map[IndicatorCode]IndicatorValue{
		IndCompliance:        f.Compliance,
		IndApproval:          f.Approval,
		IndParticipation:     f.Participation,
		IndCompletion:        f.Completion,
		IndActiveMethodology: f.ActiveMethodology,
		IndEvaluativeRatio:   f.EvaluativeRatio,
		IndExcellence:        f.Excellence,
		IndFeedback:          f.Feedback,
	}
}

// RunStatus tracks a pipeline run lifecycle.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunSummary accumulates the outcome of one pipeline run.
type RunSummary struct {
	RunID      string                 `json:"runId"`
	Status     RunStatus              `json:"status"`
	Window     DateWindow             `json:"window"`
	Discovered int                    `json:"discovered"`
	Admitted   int                    `json:"admitted"`
	Persisted  int                    `json:"persisted"`
	Rejected   map[RejectReason]int   `json:"rejected"`
	Faults     int                    `json:"faults"`
	Facts      []CourseFact           `json:"-"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt time.Time              `json:"finishedAt"`
}
