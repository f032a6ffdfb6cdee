package keyfactor

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// MinTextLength and MaxTextLength bound driver text and base rate
	// reference classes, counted in runes after trimming.
	MinTextLength = 20
	MaxTextLength = 120

	MinProjectedYear = 1900
	MaxProjectedYear = 2100
)

// Field names used as FieldErrors keys. They match the wire field names.
const (
	FieldText             = "text"
	FieldImpact           = "impact"
	FieldReferenceClass   = "reference_class"
	FieldUnit             = "unit"
	FieldSource           = "source"
	FieldRate             = "rate"
	FieldProjectedValue   = "projected_value"
	FieldProjectedByYear  = "projected_by_year"
	FieldExtrapolation    = "extrapolation"
	FieldURL              = "url"
	FieldTarget           = "question_id"
	FieldTargetQuestionID = "target_question_id"
	FieldDirection        = "direction"
	FieldStrength         = "strength"
)

// FieldErrors maps a field name to its single message.
type FieldErrors map[string]string

// Fields returns the failing field names in stable order.
func (fe FieldErrors) Fields() []string {
	names := make([]string, 0, len(fe))
	for name := range fe {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (fe FieldErrors) String() string {
	parts := make([]string, 0, len(fe))
	for _, name := range fe.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", name, fe[name]))
	}
	return strings.Join(parts, "; ")
}

// Validation is the result of checking one draft.
type Validation struct {
	Errors FieldErrors
	Valid  bool
}

// Error returns the message for field, or "".
func (v Validation) Error(field string) string {
	return v.Errors[field]
}

func newValidation(errs FieldErrors) Validation {
	return Validation{Errors: errs, Valid: len(errs) == 0}
}

// Validate runs the per-type rules for d.
func Validate(d Draft) Validation {
	switch draft := d.(type) {
	case *DriverDraft:
		return ValidateDriver(draft)
	case *BaseRateDraft:
		return ValidateBaseRate(draft)
	case *NewsDraft:
		return ValidateNews(draft)
	case *QuestionLinkDraft:
		return ValidateQuestionLink(draft)
	}
	return newValidation(FieldErrors{"": "unknown key factor type"})
}

// ValidateFor adds a target check against p to Validate.
func ValidateFor(d Draft, p Post) Validation {
	v := Validate(d)
	if target := TargetOf(d); !p.ValidTarget(target) {
		errs := FieldErrors{}
		for k, msg := range v.Errors {
			errs[k] = msg
		}
		errs[FieldTarget] = "Selected question or option does not belong to this post"
		return newValidation(errs)
	}
	return v
}

// Submittable reports whether d is non-empty and passes validation,
// including having an impact where one is required.
func Submittable(d Draft) bool {
	if d == nil || d.IsEmpty() {
		return false
	}
	return Validate(d).Valid
}

// ValidateDriver checks driver text length and impact completeness. Empty
// text is the not-yet-typed state and carries no error.
func ValidateDriver(d *DriverDraft) Validation {
	errs := FieldErrors{}
	text := strings.TrimSpace(d.Text)
	if text == "" {
		return newValidation(errs)
	}
	if !withinLength(text) {
		errs[FieldText] = lengthMessage("Driver text")
	}
	if !d.Impact.IsSet() {
		errs[FieldImpact] = "Select whether this factor increases, decreases or adds uncertainty"
	}
	return newValidation(errs)
}

// ValidateBaseRate checks the shared fields and then the active subtype.
func ValidateBaseRate(d *BaseRateDraft) Validation {
	errs := FieldErrors{}
	ref := strings.TrimSpace(d.ReferenceClass)
	switch {
	case ref == "":
		errs[FieldReferenceClass] = "Reference class is required"
	case !withinLength(ref):
		errs[FieldReferenceClass] = lengthMessage("Reference class")
	}
	if strings.TrimSpace(d.Unit) == "" {
		errs[FieldUnit] = "Unit is required"
	}
	switch source := strings.TrimSpace(d.Source); {
	case source == "":
		errs[FieldSource] = "Source is required"
	case !IsValidURL(source):
		errs[FieldSource] = "Source must be a valid http(s) link"
	}
	if d.Type == BaseRateTrend {
		validateTrend(d.Trend, errs)
	} else {
		if msg := rateError(d.Frequency); msg != "" {
			errs[FieldRate] = msg
		}
	}
	return newValidation(errs)
}

// rateError applies the frequency rules in priority order and reports the
// first violation only.
func rateError(f Frequency) string {
	if f.RateNumerator == nil || !isFinite(*f.RateNumerator) || *f.RateNumerator < 0 {
		return "Numerator must be 0 or greater"
	}
	if f.RateDenominator == nil || !isFinite(*f.RateDenominator) || *f.RateDenominator < 1 {
		return "Denominator must be at least 1"
	}
	if *f.RateDenominator < *f.RateNumerator {
		return "Denominator must be greater than or equal to the numerator"
	}
	return ""
}

func validateTrend(t Trend, errs FieldErrors) {
	if t.ProjectedValue == nil || !isFinite(*t.ProjectedValue) {
		errs[FieldProjectedValue] = "Projected value is required"
	}
	switch {
	case t.ProjectedByYear == nil:
		errs[FieldProjectedByYear] = "Projection year is required"
	case *t.ProjectedByYear < MinProjectedYear || *t.ProjectedByYear > MaxProjectedYear:
		errs[FieldProjectedByYear] = fmt.Sprintf("Projection year must be between %d and %d", MinProjectedYear, MaxProjectedYear)
	}
	if !t.Extrapolation.Valid() {
		errs[FieldExtrapolation] = "Extrapolation must be linear, exponential or other"
	}
}

// ValidateNews checks the article link and impact completeness.
func ValidateNews(d *NewsDraft) Validation {
	errs := FieldErrors{}
	link := strings.TrimSpace(d.URL)
	if link == "" {
		return newValidation(errs)
	}
	if !IsValidURL(link) {
		errs[FieldURL] = "Enter a valid http(s) link"
	}
	if !d.Impact.IsSet() {
		errs[FieldImpact] = "Select whether this article increases, decreases or adds uncertainty"
	}
	return newValidation(errs)
}

// ValidateQuestionLink checks the linked question and its grading.
func ValidateQuestionLink(d *QuestionLinkDraft) Validation {
	errs := FieldErrors{}
	if d.TargetQuestionID <= 0 {
		errs[FieldTargetQuestionID] = "Pick a question to link"
	}
	if !d.Direction.Valid() {
		errs[FieldDirection] = "Select whether the questions move together or apart"
	}
	switch d.Strength {
	case StrengthLow, StrengthMedium, StrengthHigh:
	default:
		errs[FieldStrength] = "Strength must be low, medium or high"
	}
	return newValidation(errs)
}

func withinLength(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= MinTextLength && n <= MaxTextLength
}

func lengthMessage(label string) string {
	return fmt.Sprintf("%s must be between %d and %d characters", label, MinTextLength, MaxTextLength)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
