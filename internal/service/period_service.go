package service

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/edu-insight/lms-quality-etl/internal/models"
	appErrors "github.com/edu-insight/lms-quality-etl/pkg/errors"
)

// periodTokenPattern matches the term tag embedded in course names, e.g.
// "2526-1", "2526_3" or "2526 I". The name tag is the source of truth and
// always wins over the start timestamp.
var periodTokenPattern = regexp.MustCompile(`(\d{4})[-_\s]?([123Ii])`)

// PeriodService maps a course's name and start timestamp onto exactly one
// academic period. Pure, no side effects.
type PeriodService struct {
	location *time.Location
}

// NewPeriodService constructs a period resolver. A nil location defaults
// to UTC.
func NewPeriodService(loc *time.Location) *PeriodService {
	if loc == nil {
		loc = time.UTC
	}
	return &PeriodService{location: loc}
}

// Resolve determines the PeriodKey for a course. The name token takes
// priority; otherwise the start timestamp is binned into the fixed term
// calendar. Returns an error, never a default period, when neither input
// yields a confident match. Callers must treat the error as grounds for
// exclusion.
func (s *PeriodService) Resolve(courseName string, startTS int64) (models.PeriodKey, error) {
	if key, ok := s.fromName(courseName); ok {
		return key, nil
	}
	return s.fromTimestamp(startTS)
}

func (s *PeriodService) fromName(courseName string) (models.PeriodKey, bool) {
	match := periodTokenPattern.FindStringSubmatch(courseName)
	if match == nil {
		return models.PeriodKey{}, false
	}

	yearCode := match[1] // e.g. "2526": opening year 25, closing year 26
	startYY, _ := strconv.Atoi(yearCode[:2])
	endYY, _ := strconv.Atoi(yearCode[2:])
	if (startYY+1)%100 != endYY {
		// Four digits that are not consecutive year halves are a course
		// code, not a period tag.
		return models.PeriodKey{}, false
	}

	label, index := normalizeTerm(match[2])
	return models.PeriodKey{Year: 2000 + startYY, TermIndex: index, TermLabel: label}, true
}

// fromTimestamp bins the course start into the institutional calendar:
// Sep-Dec opens term 1, Jan-Mar term 2, Apr-Jun term 3 and Jul-Aug the
// intensive term. An instant exactly on a term boundary belongs to the
// opening month, so ties resolve to the later term.
func (s *PeriodService) fromTimestamp(startTS int64) (models.PeriodKey, error) {
	if startTS <= 0 {
		return models.PeriodKey{}, appErrors.Wrap(
			fmt.Errorf("start timestamp %d", startTS),
			appErrors.ErrPeriodUnresolved.Code,
			appErrors.ErrPeriodUnresolved.Status,
			appErrors.ErrPeriodUnresolved.Message,
		)
	}

	dt := time.Unix(startTS, 0).In(s.location)
	month, year := dt.Month(), dt.Year()

	switch {
	case month >= time.September:
		return models.PeriodKey{Year: year, TermIndex: 1, TermLabel: models.TermLabelFirst}, nil
	case month <= time.March:
		return models.PeriodKey{Year: year - 1, TermIndex: 2, TermLabel: models.TermLabelSecond}, nil
	case month <= time.June:
		return models.PeriodKey{Year: year - 1, TermIndex: 3, TermLabel: models.TermLabelThird}, nil
	default: // July, August
		return models.PeriodKey{Year: year - 1, TermIndex: 4, TermLabel: models.TermLabelIntensive}, nil
	}
}

func normalizeTerm(raw string) (label string, index int) {
	switch raw {
	case "1":
		return models.TermLabelFirst, 1
	case "2":
		return models.TermLabelSecond, 2
	case "3":
		return models.TermLabelThird, 3
	default: // "I" or "i"
		return models.TermLabelIntensive, 4
	}
}
