package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edu-insight/lms-quality-etl/internal/models"
	"github.com/edu-insight/lms-quality-etl/pkg/config"
	appErrors "github.com/edu-insight/lms-quality-etl/pkg/errors"
)

const restEndpoint = "/webservice/rest/server.php"

// interactiveModules lists module types that demand learner action.
// Everything else (resource, url, page, book, folder, label, ...) is
// static content.
var interactiveModules = map[string]struct{}{
	"assign":      {},
	"quiz":        {},
	"forum":       {},
	"workshop":    {},
	"lesson":      {},
	"choice":      {},
	"feedback":    {},
	"glossary":    {},
	"h5pactivity": {},
}

// instructorRolePriority orders role shortnames when picking the course
// instructor for the dimension row. First match wins.
var instructorRolePriority = []string{"editingteacher", "teacher", "manager"}

// MoodleClient talks to the Moodle web-service REST layer and normalizes
// its payloads into the internal models. All calls are read-only.
type MoodleClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewMoodleClient builds a client from configuration. BaseURL must point
// at the Moodle root, not the endpoint.
func NewMoodleClient(cfg config.MoodleConfig, logger *zap.Logger) *MoodleClient {
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &MoodleClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		maxRetries: retries,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}
}

// wsException is Moodle's error envelope. The REST layer answers 200 OK
// even on failure, so detection happens on the body.
type wsException struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

func (e wsException) Error() string {
	return fmt.Sprintf("moodle: %s (%s)", e.Message, e.ErrorCode)
}

// call performs one web-service function with bounded retries. Retries
// cover transport failures and 5xx responses; web-service exceptions are
// terminal because they repeat deterministically.
func (c *MoodleClient) call(ctx context.Context, function string, params url.Values, out interface{}) error {
	query := url.Values{}
	query.Set("wstoken", c.token)
	query.Set("wsfunction", function)
	query.Set("moodlewsrestformat", "json")
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	endpoint := c.baseURL + restEndpoint + "?" + query.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
			c.logger.Warn("retrying moodle call",
				zap.String("function", function),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		}

		body, err := c.doOnce(ctx, endpoint)
		if err != nil {
			lastErr = err
			continue
		}

		var exc wsException
		if json.Unmarshal(body, &exc) == nil && exc.Exception != "" {
			return appErrors.ErrUpstream.WithError(exc)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return appErrors.ErrUpstream.WithError(
				fmt.Errorf("decode %s response: %w", function, err))
		}
		return nil
	}
	return appErrors.ErrUpstream.WithError(
		fmt.Errorf("%s failed after %d attempts: %w", function, c.maxRetries+1, lastErr))
}

func (c *MoodleClient) doOnce(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("moodle: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moodle: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type wsCourse struct {
	ID          int64  `json:"id"`
	ShortName   string `json:"shortname"`
	FullName    string `json:"fullname"`
	CategoryID  int64  `json:"categoryid"`
	Format      string `json:"format"`
	StartDate   int64  `json:"startdate"`
	TimeCreated int64  `json:"timecreated"`
	Enrolled    int    `json:"enrolledusercount"`
}

type wsCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// ListCourses fetches the full course catalogue with category paths
// rendered as slash-separated names. The site front page (id 1) is
// never a real course and is skipped.
func (c *MoodleClient) ListCourses(ctx context.Context) ([]models.CourseRecord, error) {
	var rawCourses []wsCourse
	if err := c.call(ctx, "core_course_get_courses", nil, &rawCourses); err != nil {
		return nil, err
	}

	paths, err := c.categoryPaths(ctx)
	if err != nil {
		return nil, err
	}

	courses := make([]models.CourseRecord, 0, len(rawCourses))
	for _, raw := range rawCourses {
		if raw.ID == 1 {
			continue
		}
		courses = append(courses, models.CourseRecord{
			ID:            raw.ID,
			ShortName:     raw.ShortName,
			FullName:      raw.FullName,
			CategoryID:    raw.CategoryID,
			CategoryPath:  paths[raw.CategoryID],
			EnrollmentCnt: raw.Enrolled,
			StartDate:     raw.StartDate,
			TimeCreated:   raw.TimeCreated,
		})
	}
	c.logger.Info("course catalogue fetched", zap.Int("courses", len(courses)))
	return courses, nil
}

// categoryPaths maps category id to its human-readable ancestry, e.g.
// "Engineering / Computer Science / 2025". Moodle encodes the raw path
// as "/1/5/12" over ids; this resolves each hop to its name.
func (c *MoodleClient) categoryPaths(ctx context.Context) (map[int64]string, error) {
	var categories []wsCategory
	if err := c.call(ctx, "core_course_get_categories", nil, &categories); err != nil {
		return nil, err
	}

	names := make(map[int64]string, len(categories))
	for _, cat := range categories {
		names[cat.ID] = cat.Name
	}

	paths := make(map[int64]string, len(categories))
	for _, cat := range categories {
		var parts []string
		for _, hop := range strings.Split(strings.Trim(cat.Path, "/"), "/") {
			id, err := strconv.ParseInt(hop, 10, 64)
			if err != nil {
				continue
			}
			if name, ok := names[id]; ok {
				parts = append(parts, name)
			}
		}
		paths[cat.ID] = strings.Join(parts, "/")
	}
	return paths, nil
}

type wsSection struct {
	ID      int64      `json:"id"`
	Visible int        `json:"visible"`
	Modules []wsModule `json:"modules"`
}

type wsModule struct {
	ID       int64  `json:"id"`
	Instance int64  `json:"instance"`
	Name     string `json:"name"`
	ModName  string `json:"modname"`
	Visible  int    `json:"visible"`
}

type wsEnrolledUser struct {
	ID         int64  `json:"id"`
	FullName   string `json:"fullname"`
	LastAccess int64  `json:"lastcourseaccess"`
	Roles      []struct {
		ShortName string `json:"shortname"`
	} `json:"roles"`
}

type wsGradeReport struct {
	UserGrades []struct {
		UserID     int64         `json:"userid"`
		GradeItems []wsGradeItem `json:"gradeitems"`
	} `json:"usergrades"`
}

type wsGradeItem struct {
	ID           int64    `json:"id"`
	ItemType     string   `json:"itemtype"`
	ItemModule   string   `json:"itemmodule"`
	ItemInstance int64    `json:"iteminstance"`
	GradeRaw     *float64 `json:"graderaw"`
	GradeMin     float64  `json:"grademin"`
	GradeMax     float64  `json:"grademax"`
	WeightRaw    *float64 `json:"weightraw"`
	DateSubmit   *int64   `json:"gradedatesubmitted"`
	Feedback     string   `json:"feedback"`
}

// FetchSnapshot assembles the complete transform input for one course:
// structure, enrollments, per-activity grades and course totals. Any
// sub-fetch failure fails the whole snapshot.
func (c *MoodleClient) FetchSnapshot(ctx context.Context, course models.CourseRecord) (models.CourseSnapshot, error) {
	sections, err := c.fetchContents(ctx, course.ID)
	if err != nil {
		return models.CourseSnapshot{}, err
	}
	enrollments, instructor, err := c.fetchEnrollments(ctx, course.ID)
	if err != nil {
		return models.CourseSnapshot{}, err
	}

	course.SectionCount = len(sections)
	course.EnrollmentCnt = len(enrollments)
	course.InstructorID = instructor.ID
	course.InstructorName = instructor.FullName

	activities, byModuleKey := normalizeActivities(course.ID, sections)

	grades, finals, err := c.fetchGrades(ctx, course.ID, activities, byModuleKey)
	if err != nil {
		return models.CourseSnapshot{}, err
	}

	return models.CourseSnapshot{
		Course:      course,
		Activities:  activities,
		Grades:      grades,
		FinalGrades: finals,
		Enrollments: enrollments,
	}, nil
}

func (c *MoodleClient) fetchContents(ctx context.Context, courseID int64) ([]wsSection, error) {
	params := url.Values{}
	params.Set("courseid", strconv.FormatInt(courseID, 10))
	var sections []wsSection
	if err := c.call(ctx, "core_course_get_contents", params, &sections); err != nil {
		return nil, err
	}
	return sections, nil
}

func (c *MoodleClient) fetchEnrollments(ctx context.Context, courseID int64) ([]models.EnrollmentRecord, wsEnrolledUser, error) {
	params := url.Values{}
	params.Set("courseid", strconv.FormatInt(courseID, 10))
	var users []wsEnrolledUser
	if err := c.call(ctx, "core_enrol_get_enrolled_users", params, &users); err != nil {
		return nil, wsEnrolledUser{}, err
	}

	enrollments := make([]models.EnrollmentRecord, 0, len(users))
	var instructor wsEnrolledUser
	instructorRank := len(instructorRolePriority)

	for _, user := range users {
		role := classifyRole(user)
		enrollments = append(enrollments, models.EnrollmentRecord{
			StudentID:  user.ID,
			CourseID:   courseID,
			Role:       role,
			LastAccess: user.LastAccess,
		})
		if rank := instructorRoleRank(user); rank < instructorRank {
			instructorRank = rank
			instructor = user
		}
	}
	return enrollments, instructor, nil
}

func classifyRole(user wsEnrolledUser) models.EnrollmentRole {
	for _, role := range user.Roles {
		switch role.ShortName {
		case "student":
			return models.RoleStudent
		case "editingteacher":
			return models.RoleTeacher
		case "teacher":
			return models.RoleAssistant
		case "manager":
			return models.RoleManager
		}
	}
	// Unrecognized roles (guest, custom) never count as learners.
	return models.RoleManager
}

func instructorRoleRank(user wsEnrolledUser) int {
	best := len(instructorRolePriority)
	for _, role := range user.Roles {
		for i, want := range instructorRolePriority {
			if role.ShortName == want && i < best {
				best = i
			}
		}
	}
	return best
}

// normalizeActivities flattens sections into activity records and keys
// them by (module, instance) so grade items can be joined back.
func normalizeActivities(courseID int64, sections []wsSection) ([]models.ActivityRecord, map[string]int64) {
	var activities []models.ActivityRecord
	byModuleKey := make(map[string]int64)

	for _, section := range sections {
		for _, mod := range section.Modules {
			if mod.ModName == "label" {
				continue
			}
			kind := models.ActivityStatic
			if _, ok := interactiveModules[mod.ModName]; ok {
				kind = models.ActivityInteractive
			}
			activities = append(activities, models.ActivityRecord{
				ID:       mod.ID,
				CourseID: courseID,
				Module:   mod.ModName,
				Kind:     kind,
				Visible:  mod.Visible == 1 && section.Visible == 1,
			})
			byModuleKey[moduleKey(mod.ModName, mod.Instance)] = mod.ID
		}
	}
	return activities, byModuleKey
}

func moduleKey(module string, instance int64) string {
	return module + ":" + strconv.FormatInt(instance, 10)
}

// fetchGrades pulls the per-user grade report and splits it into
// activity grades and course totals. It also back-fills grading metadata
// (max points, weight) onto the activity records, which Moodle only
// exposes through the gradebook.
func (c *MoodleClient) fetchGrades(
	ctx context.Context,
	courseID int64,
	activities []models.ActivityRecord,
	byModuleKey map[string]int64,
) ([]models.GradeRecord, []models.FinalGrade, error) {
	params := url.Values{}
	params.Set("courseid", strconv.FormatInt(courseID, 10))
	var report wsGradeReport
	if err := c.call(ctx, "gradereport_user_get_grade_items", params, &report); err != nil {
		return nil, nil, err
	}

	activityIdx := make(map[int64]*models.ActivityRecord, len(activities))
	for i := range activities {
		activityIdx[activities[i].ID] = &activities[i]
	}

	var grades []models.GradeRecord
	var finals []models.FinalGrade

	for _, user := range report.UserGrades {
		for _, item := range user.GradeItems {
			switch item.ItemType {
			case "course":
				if item.GradeRaw == nil {
					continue
				}
				finals = append(finals, models.FinalGrade{
					StudentID: user.UserID,
					Score:     *item.GradeRaw,
					ScaleMin:  item.GradeMin,
					ScaleMax:  item.GradeMax,
				})
			case "mod":
				activityID, ok := byModuleKey[moduleKey(item.ItemModule, item.ItemInstance)]
				if !ok {
					continue
				}
				if activity := activityIdx[activityID]; activity != nil {
					activity.Graded = true
					activity.MaxPoints = item.GradeMax
					if item.WeightRaw != nil {
						activity.Weight = *item.WeightRaw
					}
				}
				grades = append(grades, models.GradeRecord{
					StudentID:   user.UserID,
					ActivityID:  activityID,
					Score:       item.GradeRaw,
					ScaleMin:    item.GradeMin,
					ScaleMax:    item.GradeMax,
					SubmittedAt: item.DateSubmit,
					Feedback:    strings.TrimSpace(stripTags(item.Feedback)),
				})
			}
		}
	}
	return grades, finals, nil
}

// stripTags removes HTML markup from gradebook feedback so whitespace
// detection sees the actual text.
func stripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
