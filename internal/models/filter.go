package models

// RejectReason names the admissibility rule a course failed.
type RejectReason string

const (
	ReasonInsufficientPopulation RejectReason = "insufficient_population"
	ReasonUngradedOverload       RejectReason = "ungraded_overload"
	ReasonFlatHierarchy          RejectReason = "flat_hierarchy"
	ReasonCategoryExcluded       RejectReason = "category_excluded"
	ReasonOutOfRange             RejectReason = "out_of_range"
)

// RuleNames in their fixed evaluation order.
const (
	RulePopulation = "population"
	RuleIntegrity  = "integrity"
	RuleHierarchy  = "hierarchy"
	RuleCategory   = "category"
	RuleDateRange  = "date_range"
)

// RuleResult is one admissibility rule evaluation.
type RuleResult struct {
	Rule   string       `json:"rule"`
	Passed bool         `json:"passed"`
	Reason RejectReason `json:"reason,omitempty"`
	Detail string       `json:"detail,omitempty"`
}

// FilterDecision is the full audit trail for one course. Every rule is
// evaluated regardless of earlier failures; the decision is deterministic
// for identical inputs and configuration.
type FilterDecision struct {
	CourseID int64        `json:"courseId"`
	Admitted bool         `json:"admitted"`
	Rules    []RuleResult `json:"rules"`
}

// FirstReason returns the reason of the first failed rule, or empty when
// admitted.
func (d FilterDecision) FirstReason() RejectReason {
	for _, r := range d.Rules {
		if !r.Passed {
			return r.Reason
		}
	}
	return ""
}
