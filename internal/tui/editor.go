package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

// field is one editable row of a draft. Fields with choices cycle on enter;
// the rest open the line editor.
type field struct {
	key     string
	label   string
	choices []string
	get     func() string
	set     func(string) error
}

func (f field) isChoice() bool {
	return len(f.choices) > 0
}

// next returns the choice after the current value, wrapping around.
func (f field) next() string {
	current := f.get()
	for i, c := range f.choices {
		if c == current {
			return f.choices[(i+1)%len(f.choices)]
		}
	}
	return f.choices[0]
}

// fieldsFor lists the editable rows of d. The set functions mutate d in place.
func fieldsFor(d keyfactor.Draft, post keyfactor.Post) []field {
	switch draft := d.(type) {
	case *keyfactor.DriverDraft:
		fields := targetFields(&draft.Target, post)
		fields = append(fields,
			textField(keyfactor.FieldText, "Driver", &draft.Text),
			impactField(&draft.Impact, post.Vocabulary(draft.Target)),
		)
		return fields
	case *keyfactor.BaseRateDraft:
		return baseRateFields(draft, post)
	case *keyfactor.NewsDraft:
		fields := targetFields(&draft.Target, post)
		fields = append(fields,
			textField(keyfactor.FieldURL, "Article URL", &draft.URL),
			impactField(&draft.Impact, post.Vocabulary(draft.Target)),
		)
		return fields
	case *keyfactor.QuestionLinkDraft:
		return questionLinkFields(draft)
	}
	return nil
}

func textField(key, label string, target *string) field {
	return field{
		key:   key,
		label: label,
		get:   func() string { return *target },
		set: func(v string) error {
			*target = v
			return nil
		},
	}
}

func targetFields(t *keyfactor.Target, post keyfactor.Post) []field {
	choices := post.Targets()
	if len(choices) < 2 {
		return nil
	}
	labels := make([]string, len(choices))
	for i, c := range choices {
		labels[i] = c.Label
	}
	return []field{{
		key:     keyfactor.FieldTarget,
		label:   "Applies to",
		choices: labels,
		get: func() string {
			for _, c := range choices {
				if c.Target == *t {
					return c.Label
				}
			}
			return choices[0].Label
		},
		set: func(v string) error {
			for _, c := range choices {
				if c.Label == v {
					*t = c.Target
					return nil
				}
			}
			return fmt.Errorf("unknown target %q", v)
		},
	}}
}

func impactField(impact *keyfactor.Impact, vocab keyfactor.Vocabulary) field {
	kinds := []keyfactor.ImpactKind{
		keyfactor.ImpactUnset,
		keyfactor.ImpactIncrease,
		keyfactor.ImpactDecrease,
		keyfactor.ImpactUncertainty,
	}
	label := func(k keyfactor.ImpactKind) string {
		if k == keyfactor.ImpactUnset {
			return "not set"
		}
		return vocab.Label(k)
	}
	choices := make([]string, len(kinds))
	for i, k := range kinds {
		choices[i] = label(k)
	}
	return field{
		key:     keyfactor.FieldImpact,
		label:   "Impact",
		choices: choices,
		get:     func() string { return label(impact.Kind()) },
		set: func(v string) error {
			for _, k := range kinds {
				if label(k) == v {
					*impact = keyfactor.ImpactOf(k)
					return nil
				}
			}
			return fmt.Errorf("unknown impact %q", v)
		},
	}
}

func baseRateFields(d *keyfactor.BaseRateDraft, post keyfactor.Post) []field {
	fields := targetFields(&d.Target, post)
	fields = append(fields,
		field{
			key:     "type",
			label:   "Type",
			choices: []string{string(keyfactor.BaseRateFrequency), string(keyfactor.BaseRateTrend)},
			get:     func() string { return string(d.Type) },
			set: func(v string) error {
				d.SwitchType(keyfactor.BaseRateType(v))
				return nil
			},
		},
		textField(keyfactor.FieldReferenceClass, "Reference class", &d.ReferenceClass),
		textField(keyfactor.FieldUnit, "Unit", &d.Unit),
		textField(keyfactor.FieldSource, "Source", &d.Source),
	)
	if d.Type == keyfactor.BaseRateTrend {
		return append(fields,
			floatField(keyfactor.FieldProjectedValue, "Projected value", &d.Trend.ProjectedValue),
			intField(keyfactor.FieldProjectedByYear, "By year", &d.Trend.ProjectedByYear),
			field{
				key:   keyfactor.FieldExtrapolation,
				label: "Extrapolation",
				choices: []string{
					"",
					string(keyfactor.ExtrapolationLinear),
					string(keyfactor.ExtrapolationExponential),
					string(keyfactor.ExtrapolationOther),
				},
				get: func() string { return string(d.Trend.Extrapolation) },
				set: func(v string) error {
					d.Trend.Extrapolation = keyfactor.Extrapolation(v)
					return nil
				},
			},
			textField("based_on", "Based on", &d.Trend.BasedOn),
		)
	}
	return append(fields,
		floatField(keyfactor.FieldRate, "Occurrences", &d.Frequency.RateNumerator),
		floatField(keyfactor.FieldRate, "Out of", &d.Frequency.RateDenominator),
	)
}

func questionLinkFields(d *keyfactor.QuestionLinkDraft) []field {
	return []field{
		{
			key:   keyfactor.FieldTargetQuestionID,
			label: "Linked question id",
			get: func() string {
				if d.TargetQuestionID == 0 {
					return ""
				}
				return strconv.Itoa(d.TargetQuestionID)
			},
			set: func(v string) error {
				v = strings.TrimSpace(v)
				if v == "" {
					d.TargetQuestionID = 0
					return nil
				}
				id, err := strconv.Atoi(v)
				if err != nil {
					return fmt.Errorf("question id must be a whole number")
				}
				d.TargetQuestionID = id
				return nil
			},
		},
		{
			key:     keyfactor.FieldDirection,
			label:   "Moves",
			choices: []string{"not set", "together", "opposite"},
			get: func() string {
				switch d.Direction {
				case keyfactor.DirectionIncrease:
					return "together"
				case keyfactor.DirectionDecrease:
					return "opposite"
				}
				return "not set"
			},
			set: func(v string) error {
				switch v {
				case "together":
					d.Direction = keyfactor.DirectionIncrease
				case "opposite":
					d.Direction = keyfactor.DirectionDecrease
				default:
					d.Direction = keyfactor.DirectionNone
				}
				return nil
			},
		},
		{
			key:   keyfactor.FieldStrength,
			label: "Strength",
			choices: []string{
				string(keyfactor.StrengthLow),
				string(keyfactor.StrengthMedium),
				string(keyfactor.StrengthHigh),
			},
			get: func() string { return string(d.Strength) },
			set: func(v string) error {
				d.Strength = keyfactor.Strength(v)
				return nil
			},
		},
	}
}

func floatField(key, label string, target **float64) field {
	return field{
		key:   key,
		label: label,
		get: func() string {
			if *target == nil {
				return ""
			}
			return strconv.FormatFloat(**target, 'g', -1, 64)
		},
		set: func(v string) error {
			v = strings.TrimSpace(v)
			if v == "" {
				*target = nil
				return nil
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s must be a number", strings.ToLower(label))
			}
			*target = keyfactor.Float(f)
			return nil
		},
	}
}

func intField(key, label string, target **int) field {
	return field{
		key:   key,
		label: label,
		get: func() string {
			if *target == nil {
				return ""
			}
			return strconv.Itoa(**target)
		},
		set: func(v string) error {
			v = strings.TrimSpace(v)
			if v == "" {
				*target = nil
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s must be a whole number", strings.ToLower(label))
			}
			*target = keyfactor.Year(n)
			return nil
		},
	}
}

func kindLabel(k keyfactor.Kind) string {
	switch k {
	case keyfactor.KindDriver:
		return "Driver"
	case keyfactor.KindBaseRate:
		return "Base rate"
	case keyfactor.KindNews:
		return "News"
	case keyfactor.KindQuestionLink:
		return "Question link"
	}
	return string(k)
}
