package models

// EnrollmentRole classifies a course membership.
type EnrollmentRole string

const (
	RoleStudent   EnrollmentRole = "student"
	RoleTeacher   EnrollmentRole = "teacher"
	RoleAssistant EnrollmentRole = "assistant"
	RoleManager   EnrollmentRole = "manager"
)

// ActiveLearner reports whether the role counts toward participation
// denominators.
func (r EnrollmentRole) ActiveLearner() bool {
	return r == RoleStudent
}

// CourseRecord is an immutable per-run snapshot of a course's identity and
// structural metadata, normalized at the API boundary.
type CourseRecord struct {
	ID             int64
	ShortName      string
	FullName       string
	CategoryID     int64
	CategoryPath   string
	SectionCount   int
	EnrollmentCnt  int
	InstructorID   int64
	InstructorName string
	StartDate      int64
	TimeCreated    int64
}

// ActivityKind distinguishes interactive modules from static content.
type ActivityKind string

const (
	ActivityInteractive ActivityKind = "interactive"
	ActivityStatic      ActivityKind = "static"
)

// ActivityRecord describes one course activity.
type ActivityRecord struct {
	ID        int64
	CourseID  int64
	Module    string
	Kind      ActivityKind
	Visible   bool
	Graded    bool
	MaxPoints float64
	Weight    float64
}

// GradedEligible reports whether the activity counts toward grading-based
// indicators and the integrity rule.
func (a ActivityRecord) GradedEligible() bool {
	return a.Graded && a.MaxPoints > 0
}

// GradeRecord holds one (student, activity) grading outcome. Score is nil
// when the student never submitted.
type GradeRecord struct {
	StudentID   int64
	ActivityID  int64
	Score       *float64
	ScaleMin    float64
	ScaleMax    float64
	SubmittedAt *int64
	Feedback    string
}

// Submitted reports whether the record represents an actual submission.
func (g GradeRecord) Submitted() bool {
	return g.Score != nil || g.SubmittedAt != nil
}

// FinalGrade is a student's recorded course total on its native scale.
type FinalGrade struct {
	StudentID int64
	Score     float64
	ScaleMin  float64
	ScaleMax  float64
}

// Normalized converts the final grade to the 0-20 institutional scale.
func (f FinalGrade) Normalized() float64 {
	span := f.ScaleMax - f.ScaleMin
	if span <= 0 {
		return 0
	}
	return (f.Score - f.ScaleMin) / span * GradeScaleMax
}

// EnrollmentRecord is one (student, course) membership.
type EnrollmentRecord struct {
	StudentID  int64
	CourseID   int64
	Role       EnrollmentRole
	LastAccess int64
}

// CourseSnapshot bundles everything the transform stage needs for one
// course. The pipeline treats it as complete-or-failed; partially fetched
// snapshots never reach the calculators.
type CourseSnapshot struct {
	Course      CourseRecord
	Activities  []ActivityRecord
	Grades      []GradeRecord
	FinalGrades []FinalGrade
	Enrollments []EnrollmentRecord
}

// ActiveLearnerIDs returns the set of student IDs holding an active-learner
// role in the snapshot.
func (s CourseSnapshot) ActiveLearnerIDs() map[int64]struct{} {
	ids := make(map[int64]struct{})
	for _, e := range s.Enrollments {
		if e.Role.ActiveLearner() {
			ids[e.StudentID] = struct{}{}
		}
	}
	return ids
}
