package keyfactor

import "strings"

// QuestionType enumerates the forecast question kinds a post can carry.
type QuestionType string

const (
	QuestionBinary         QuestionType = "binary"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionNumeric        QuestionType = "numeric"
	QuestionDiscrete       QuestionType = "discrete"
	QuestionDate           QuestionType = "date"
)

// Question is one forecastable question.
type Question struct {
	ID      int          `json:"id" yaml:"id"`
	Title   string       `json:"title" yaml:"title"`
	Type    QuestionType `json:"type" yaml:"type"`
	Unit    string       `json:"unit,omitempty" yaml:"unit,omitempty"`
	Options []string     `json:"options,omitempty" yaml:"options,omitempty"`
}

// Post describes the page key factors are attached to. Exactly one of
// Question or Group is populated.
type Post struct {
	ID       int64      `json:"id" yaml:"id"`
	Title    string     `json:"title" yaml:"title"`
	Question *Question  `json:"question,omitempty" yaml:"question,omitempty"`
	Group    []Question `json:"group_of_questions,omitempty" yaml:"group_of_questions,omitempty"`
}

// PostShape distinguishes the three layouts that drive the target picker.
type PostShape int

const (
	ShapeSingle PostShape = iota
	ShapeMultipleChoice
	ShapeGroup
)

// Shape classifies the post.
func (p Post) Shape() PostShape {
	if len(p.Group) > 0 {
		return ShapeGroup
	}
	if p.Question != nil && p.Question.Type == QuestionMultipleChoice {
		return ShapeMultipleChoice
	}
	return ShapeSingle
}

// Target identifies the sub-question or option a draft most affects. The
// zero value applies to the whole question.
type Target struct {
	QuestionID int
	Option     string
}

// IsZero reports whether the target is the whole question.
func (t Target) IsZero() bool {
	return t.QuestionID == 0 && t.Option == ""
}

// TargetChoice is one entry of the target picker.
type TargetChoice struct {
	Target Target
	Label  string
}

// Targets lists the picker entries for p, whole-question first.
func (p Post) Targets() []TargetChoice {
	choices := []TargetChoice{{Label: "Whole question"}}
	switch p.Shape() {
	case ShapeGroup:
		for _, q := range p.Group {
			choices = append(choices, TargetChoice{Target: Target{QuestionID: q.ID}, Label: q.Title})
		}
	case ShapeMultipleChoice:
		for _, opt := range p.Question.Options {
			choices = append(choices, TargetChoice{Target: Target{Option: opt}, Label: opt})
		}
	}
	return choices
}

// ValidTarget reports whether t names something present on the post.
func (p Post) ValidTarget(t Target) bool {
	if t.IsZero() {
		return true
	}
	switch p.Shape() {
	case ShapeGroup:
		if t.Option != "" {
			return false
		}
		_, ok := p.subQuestion(t.QuestionID)
		return ok
	case ShapeMultipleChoice:
		if t.QuestionID != 0 {
			return false
		}
		for _, opt := range p.Question.Options {
			if opt == t.Option {
				return true
			}
		}
	}
	return false
}

// QuestionFor resolves the question a target points at, defaulting to the
// post's main question or the first sub-question of a group.
func (p Post) QuestionFor(t Target) (Question, bool) {
	if t.QuestionID != 0 {
		if q, ok := p.subQuestion(t.QuestionID); ok {
			return q, true
		}
	}
	if p.Question != nil {
		return *p.Question, true
	}
	if len(p.Group) > 0 {
		return p.Group[0], true
	}
	return Question{}, false
}

// QuestionIDs returns every question id on the post.
func (p Post) QuestionIDs() []int {
	var ids []int
	if p.Question != nil {
		ids = append(ids, p.Question.ID)
	}
	for _, q := range p.Group {
		ids = append(ids, q.ID)
	}
	return ids
}

// DefaultUnit is the unit a new base rate inherits for target t.
func (p Post) DefaultUnit(t Target) string {
	if q, ok := p.QuestionFor(t); ok {
		return strings.TrimSpace(q.Unit)
	}
	return ""
}

// Vocabulary returns the direction wording for target t.
func (p Post) Vocabulary(t Target) Vocabulary {
	q, ok := p.QuestionFor(t)
	if !ok {
		return VocabularyFor(QuestionBinary)
	}
	return VocabularyFor(q.Type)
}

func (p Post) subQuestion(id int) (Question, bool) {
	for _, q := range p.Group {
		if q.ID == id {
			return q, true
		}
	}
	if p.Question != nil && p.Question.ID == id {
		return *p.Question, true
	}
	return Question{}, false
}
