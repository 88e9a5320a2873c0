package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edu-insight/lms-quality-etl/internal/models"
)

// WarehouseRepository persists course facts and their dimensions into the
// dimensional store. All writes are keyed upserts: replaying a run for
// the same course/period updates in place and never duplicates rows.
type WarehouseRepository struct {
	db *sqlx.DB
}

// NewWarehouseRepository constructs the repository.
func NewWarehouseRepository(db *sqlx.DB) *WarehouseRepository {
	return &WarehouseRepository{db: db}
}

const upsertTimeQuery = `INSERT INTO dim_time (time_id, period_name, year, term, term_index)
	VALUES (:time_id, :period_name, :year, :term, :term_index)
	ON CONFLICT (time_id) DO NOTHING`

const upsertInstructorQuery = `INSERT INTO dim_instructor (instructor_id, instructor_name)
	VALUES (:instructor_id, :instructor_name)
	ON CONFLICT (instructor_id) DO UPDATE SET
		instructor_name = EXCLUDED.instructor_name`

const upsertSubjectQuery = `INSERT INTO dim_subject (subject_id, subject_name, department)
	VALUES (:subject_id, :subject_name, :department)
	ON CONFLICT (subject_id) DO UPDATE SET
		subject_name = EXCLUDED.subject_name,
		department = EXCLUDED.department`

const upsertFactQuery = `INSERT INTO fact_course_quality (
		course_id, time_id, subject_id, instructor_id, course_name, students_processed,
		ind_1_1_num, ind_1_1_den, ind_1_1_pct,
		ind_1_2_num, ind_1_2_den, ind_1_2_pct,
		ind_1_3_mean, ind_1_3_median, ind_1_3_stddev, ind_1_3_count,
		ind_1_4_num, ind_1_4_den, ind_1_4_pct,
		ind_1_5_num, ind_1_5_den, ind_1_5_pct,
		ind_2_1_num, ind_2_1_den, ind_2_1_pct,
		ind_2_2_num, ind_2_2_den, ind_2_2_pct,
		ind_3_1_num, ind_3_1_den, ind_3_1_pct,
		ind_3_2_num, ind_3_2_den, ind_3_2_pct,
		computed_at
	) VALUES (
		:course_id, :time_id, :subject_id, :instructor_id, :course_name, :students_processed,
		:ind_1_1_num, :ind_1_1_den, :ind_1_1_pct,
		:ind_1_2_num, :ind_1_2_den, :ind_1_2_pct,
		:ind_1_3_mean, :ind_1_3_median, :ind_1_3_stddev, :ind_1_3_count,
		:ind_1_4_num, :ind_1_4_den, :ind_1_4_pct,
		:ind_1_5_num, :ind_1_5_den, :ind_1_5_pct,
		:ind_2_1_num, :ind_2_1_den, :ind_2_1_pct,
		:ind_2_2_num, :ind_2_2_den, :ind_2_2_pct,
		:ind_3_1_num, :ind_3_1_den, :ind_3_1_pct,
		:ind_3_2_num, :ind_3_2_den, :ind_3_2_pct,
		:computed_at
	)
	ON CONFLICT (course_id, time_id) DO UPDATE SET
		subject_id = EXCLUDED.subject_id,
		instructor_id = EXCLUDED.instructor_id,
		course_name = EXCLUDED.course_name,
		students_processed = EXCLUDED.students_processed,
		ind_1_1_num = EXCLUDED.ind_1_1_num, ind_1_1_den = EXCLUDED.ind_1_1_den, ind_1_1_pct = EXCLUDED.ind_1_1_pct,
		ind_1_2_num = EXCLUDED.ind_1_2_num, ind_1_2_den = EXCLUDED.ind_1_2_den, ind_1_2_pct = EXCLUDED.ind_1_2_pct,
		ind_1_3_mean = EXCLUDED.ind_1_3_mean, ind_1_3_median = EXCLUDED.ind_1_3_median,
		ind_1_3_stddev = EXCLUDED.ind_1_3_stddev, ind_1_3_count = EXCLUDED.ind_1_3_count,
		ind_1_4_num = EXCLUDED.ind_1_4_num, ind_1_4_den = EXCLUDED.ind_1_4_den, ind_1_4_pct = EXCLUDED.ind_1_4_pct,
		ind_1_5_num = EXCLUDED.ind_1_5_num, ind_1_5_den = EXCLUDED.ind_1_5_den, ind_1_5_pct = EXCLUDED.ind_1_5_pct,
		ind_2_1_num = EXCLUDED.ind_2_1_num, ind_2_1_den = EXCLUDED.ind_2_1_den, ind_2_1_pct = EXCLUDED.ind_2_1_pct,
		ind_2_2_num = EXCLUDED.ind_2_2_num, ind_2_2_den = EXCLUDED.ind_2_2_den, ind_2_2_pct = EXCLUDED.ind_2_2_pct,
		ind_3_1_num = EXCLUDED.ind_3_1_num, ind_3_1_den = EXCLUDED.ind_3_1_den, ind_3_1_pct = EXCLUDED.ind_3_1_pct,
		ind_3_2_num = EXCLUDED.ind_3_2_num, ind_3_2_den = EXCLUDED.ind_3_2_den, ind_3_2_pct = EXCLUDED.ind_3_2_pct,
		computed_at = EXCLUDED.computed_at`

// factRow flattens a CourseFact for named-parameter binding.
type factRow struct {
	CourseID          int64     `db:"course_id"`
	TimeID            string    `db:"time_id"`
	SubjectID         string    `db:"subject_id"`
	InstructorID      int64     `db:"instructor_id"`
	CourseName        string    `db:"course_name"`
	StudentsProcessed int       `db:"students_processed"`
	ComputedAt        time.Time `db:"computed_at"`

	ComplianceNum float64  `db:"ind_1_1_num"`
	ComplianceDen float64  `db:"ind_1_1_den"`
	CompliancePct *float64 `db:"ind_1_1_pct"`

	ApprovalNum float64  `db:"ind_1_2_num"`
	ApprovalDen float64  `db:"ind_1_2_den"`
	ApprovalPct *float64 `db:"ind_1_2_pct"`

	GradeMean   float64 `db:"ind_1_3_mean"`
	GradeMedian float64 `db:"ind_1_3_median"`
	GradeStdDev float64 `db:"ind_1_3_stddev"`
	GradeCount  int     `db:"ind_1_3_count"`

	ParticipationNum float64  `db:"ind_1_4_num"`
	ParticipationDen float64  `db:"ind_1_4_den"`
	ParticipationPct *float64 `db:"ind_1_4_pct"`

	CompletionNum float64  `db:"ind_1_5_num"`
	CompletionDen float64  `db:"ind_1_5_den"`
	CompletionPct *float64 `db:"ind_1_5_pct"`

	MethodologyNum float64  `db:"ind_2_1_num"`
	MethodologyDen float64  `db:"ind_2_1_den"`
	MethodologyPct *float64 `db:"ind_2_1_pct"`

	EvaluativeNum float64  `db:"ind_2_2_num"`
	EvaluativeDen float64  `db:"ind_2_2_den"`
	EvaluativePct *float64 `db:"ind_2_2_pct"`

	ExcellenceNum float64  `db:"ind_3_1_num"`
	ExcellenceDen float64  `db:"ind_3_1_den"`
	ExcellencePct *float64 `db:"ind_3_1_pct"`

	FeedbackNum float64  `db:"ind_3_2_num"`
	FeedbackDen float64  `db:"ind_3_2_den"`
	FeedbackPct *float64 `db:"ind_3_2_pct"`
}

func newFactRow(fact models.CourseFact) factRow {
	return factRow{
		CourseID:          fact.CourseID,
		TimeID:            fact.Period.ID(),
		SubjectID:         fact.Subject.ID,
		InstructorID:      fact.Instructor.ID,
		CourseName:        fact.CourseName,
		StudentsProcessed: fact.StudentsProcessed,
		ComputedAt:        fact.ComputedAt,

		ComplianceNum: fact.Compliance.Numerator,
		ComplianceDen: fact.Compliance.Denominator,
		CompliancePct: fact.Compliance.Percent(),

		ApprovalNum: fact.Approval.Numerator,
		ApprovalDen: fact.Approval.Denominator,
		ApprovalPct: fact.Approval.Percent(),

		GradeMean:   fact.Grades.Mean,
		GradeMedian: fact.Grades.Median,
		GradeStdDev: fact.Grades.StdDev,
		GradeCount:  fact.Grades.Count,

		ParticipationNum: fact.Participation.Numerator,
		ParticipationDen: fact.Participation.Denominator,
		ParticipationPct: fact.Participation.Percent(),

		CompletionNum: fact.Completion.Numerator,
		CompletionDen: fact.Completion.Denominator,
		CompletionPct: fact.Completion.Percent(),

		MethodologyNum: fact.ActiveMethodology.Numerator,
		MethodologyDen: fact.ActiveMethodology.Denominator,
		MethodologyPct: fact.ActiveMethodology.Percent(),

		EvaluativeNum: fact.EvaluativeRatio.Numerator,
		EvaluativeDen: fact.EvaluativeRatio.Denominator,
		EvaluativePct: fact.EvaluativeRatio.Percent(),

		ExcellenceNum: fact.Excellence.Numerator,
		ExcellenceDen: fact.Excellence.Denominator,
		ExcellencePct: fact.Excellence.Percent(),

		FeedbackNum: fact.Feedback.Numerator,
		FeedbackDen: fact.Feedback.Denominator,
		FeedbackPct: fact.Feedback.Percent(),
	}
}

// Persist writes the fact and its dimension rows in one transaction.
// Dimensions go first: the fact row references their natural keys.
// Concurrent workers upserting the same dimension key are serialized by
// the database's ON CONFLICT handling, so no cross-course locking exists
// here.
func (r *WarehouseRepository) Persist(ctx context.Context, fact models.CourseFact) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fact tx: %w", err)
	}

	if _, err := tx.NamedExecContext(ctx, upsertTimeQuery, fact.TimeRow()); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("upsert time dimension: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, upsertInstructorQuery, fact.Instructor); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("upsert instructor dimension: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, upsertSubjectQuery, fact.Subject); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("upsert subject dimension: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, upsertFactQuery, newFactRow(fact)); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("upsert course fact: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit course fact: %w", err)
	}
	return nil
}

// Ping verifies warehouse connectivity; the heartbeat service calls it
// periodically to keep the hosted database awake.
func (r *WarehouseRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRowxContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("warehouse ping: %w", err)
	}
	return nil
}
