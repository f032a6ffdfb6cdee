package contracts

import (
	"fmt"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

// ValidatePost checks a post descriptor against the question contracts.
func ValidatePost(post keyfactor.Post) []error {
	var errs []error
	if post.ID <= 0 {
		errs = append(errs, fmt.Errorf("id is required"))
	}
	if post.Title == "" {
		errs = append(errs, fmt.Errorf("title is required"))
	}
	if post.Question == nil && len(post.Group) == 0 {
		errs = append(errs, fmt.Errorf("question or group_of_questions is required"))
	}
	if post.Question != nil && len(post.Group) > 0 {
		errs = append(errs, fmt.Errorf("question and group_of_questions are mutually exclusive"))
	}

	seenIDs := map[int]struct{}{}
	check := func(label string, q keyfactor.Question, grouped bool) {
		if q.ID <= 0 {
			errs = append(errs, fmt.Errorf("%s.id is required", label))
		} else {
			if _, exists := seenIDs[q.ID]; exists {
				errs = append(errs, fmt.Errorf("%s.id duplicates %d", label, q.ID))
			}
			seenIDs[q.ID] = struct{}{}
		}
		if grouped && q.Title == "" {
			errs = append(errs, fmt.Errorf("%s.title is required", label))
		}
		contract, ok := ContractForType(q.Type)
		if !ok {
			errs = append(errs, fmt.Errorf("%s.type %q is unknown", label, q.Type))
			return
		}
		if grouped && !contract.Grouped {
			errs = append(errs, fmt.Errorf("%s.type %s cannot be grouped", label, q.Type))
		}
		if contract.RequiresOptions && len(q.Options) < 2 {
			errs = append(errs, fmt.Errorf("%s.options needs at least two entries", label))
		}
		if !contract.RequiresOptions && len(q.Options) > 0 {
			errs = append(errs, fmt.Errorf("%s.options is only allowed on multiple choice questions", label))
		}
	}
	if post.Question != nil {
		check("question", *post.Question, false)
	}
	for i, q := range post.Group {
		check(fmt.Sprintf("group_of_questions[%d]", i), q, true)
	}
	return errs
}

// Warnings lists soft issues that do not block loading.
func Warnings(post keyfactor.Post) []string {
	var out []string
	questions := post.Group
	if post.Question != nil {
		questions = append([]keyfactor.Question{*post.Question}, questions...)
	}
	for _, q := range questions {
		if contract, ok := ContractForType(q.Type); ok && contract.UnitHint != "" && q.Unit == "" {
			out = append(out, fmt.Sprintf("question %d: %s", q.ID, contract.UnitHint))
		}
	}
	return out
}

// ValidateSuggestions checks canned suggestions against the post they are
// offered on. Unsupported kinds are reported because the suggestion list
// would drop them.
func ValidateSuggestions(post keyfactor.Post, drafts []keyfactor.Draft) []error {
	var errs []error
	for i, d := range drafts {
		switch d.Kind() {
		case keyfactor.KindDriver, keyfactor.KindBaseRate:
		default:
			errs = append(errs, fmt.Errorf("key_factors[%d]: %s suggestions are not shown", i, d.Kind()))
			continue
		}
		if d.IsEmpty() {
			errs = append(errs, fmt.Errorf("key_factors[%d]: suggestion is empty", i))
			continue
		}
		v := keyfactor.ValidateFor(d, post)
		for _, field := range v.Errors.Fields() {
			errs = append(errs, fmt.Errorf("key_factors[%d].%s: %s", i, field, v.Errors[field]))
		}
	}
	return errs
}
