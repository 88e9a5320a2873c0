package models

import "fmt"

// Term labels follow the institutional calendar: three regular trimesters
// plus a short intensive term over July-August.
const (
	TermLabelFirst     = "1"
	TermLabelSecond    = "2"
	TermLabelThird     = "3"
	TermLabelIntensive = "I"
)

// PeriodKey identifies one academic period. Year is the calendar year the
// academic year opened; TermIndex orders terms within it (1-4, intensive
// last). Exactly one PeriodKey exists per admitted course.
type PeriodKey struct {
	Year      int
	TermIndex int
	TermLabel string
}

// ID returns the 5-character natural key used by the time dimension,
// e.g. 2025 term 1 -> "25261".
func (p PeriodKey) ID() string {
	return fmt.Sprintf("%02d%02d%s", p.Year%100, (p.Year+1)%100, p.TermLabel)
}

// Name returns the human-readable period label, e.g. "2526-1".
func (p PeriodKey) Name() string {
	return fmt.Sprintf("%02d%02d-%s", p.Year%100, (p.Year+1)%100, p.TermLabel)
}

// IsZero reports whether the key is unset.
func (p PeriodKey) IsZero() bool {
	return p.Year == 0 && p.TermIndex == 0 && p.TermLabel == ""
}

// DateWindow is the inclusive processing window, as unix timestamps.
type DateWindow struct {
	Start int64
	End   int64
}

// Contains reports whether ts falls inside the window, boundaries included.
func (w DateWindow) Contains(ts int64) bool {
	return ts >= w.Start && ts <= w.End
}
