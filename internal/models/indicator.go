package models

// GradeScaleMax is the institutional 0-20 grading scale ceiling every raw
// grade is normalized onto before threshold comparison.
const GradeScaleMax = 20.0

// IndicatorCode identifies one of the nine course-quality indicators.
type IndicatorCode string

const (
	IndCompliance        IndicatorCode = "1.1"
	IndApproval          IndicatorCode = "1.2"
	IndGradeStats        IndicatorCode = "1.3"
	IndParticipation     IndicatorCode = "1.4"
	IndCompletion        IndicatorCode = "1.5"
	IndActiveMethodology IndicatorCode = "2.1"
	IndEvaluativeRatio   IndicatorCode = "2.2"
	IndExcellence        IndicatorCode = "3.1"
	IndFeedback          IndicatorCode = "3.2"
)

// Group1Codes are the ratio indicators the results calculator must emit.
var Group1Codes = []IndicatorCode{IndCompliance, IndApproval, IndParticipation, IndCompletion}

// Group2Codes are the indicators the design calculator must emit.
var Group2Codes = []IndicatorCode{IndActiveMethodology, IndEvaluativeRatio}

// Group3Codes are the indicators the behavior calculator must emit.
var Group3Codes = []IndicatorCode{IndExcellence, IndFeedback}

// IndicatorValue is a raw (numerator, denominator) pair. The ratio is
// always re-derived from the pair; a zero denominator is an explicit
// undefined state, never coerced to 0 or 100. Institution-level ratios
// must be computed by summing pairs and dividing once, never by averaging
// per-course ratios.
type IndicatorValue struct {
	Numerator   float64
	Denominator float64
}

// Ratio returns numerator/denominator and whether the value is defined.
func (v IndicatorValue) Ratio() (float64, bool) {
	if v.Denominator == 0 {
		return 0, false
	}
	return v.Numerator / v.Denominator, true
}

// Percent returns the ratio scaled to 0-100, or nil when undefined.
// The nil form maps onto a NULL warehouse column.
func (v IndicatorValue) Percent() *float64 {
	ratio, ok := v.Ratio()
	if !ok {
		return nil
	}
	pct := ratio * 100
	return &pct
}

// Sum merges two pairs at a coarser grain.
func (v IndicatorValue) Sum(other IndicatorValue) IndicatorValue {
	return IndicatorValue{
		Numerator:   v.Numerator + other.Numerator,
		Denominator: v.Denominator + other.Denominator,
	}
}

// GradeStats carries the 1.3 descriptive statistics over recorded,
// normalized final grades. Count is the sample size; zero means no grades
// were recorded and the three moments are meaningless.
type GradeStats struct {
	Mean   float64
	Median float64
	StdDev float64
	Count  int
}

// Group1Result is the results-calculator output: four ratio indicators
// plus the grade statistics.
type Group1Result struct {
	Indicators map[IndicatorCode]IndicatorValue
	Stats      GradeStats
}

// GroupResult is the design/behavior calculator output.
type GroupResult struct {
	Indicators map[IndicatorCode]IndicatorValue
}
