package keyfactor

import (
	"strings"
	"time"
)

// Kind names a draft variant. The values double as the wire discriminators.
type Kind string

const (
	KindDriver       Kind = "driver"
	KindBaseRate     Kind = "base_rate"
	KindNews         Kind = "news"
	KindQuestionLink Kind = "question_link"
)

// Kinds lists the variants in picker order.
var Kinds = []Kind{KindDriver, KindBaseRate, KindNews, KindQuestionLink}

// ConsumesQuota reports whether drafts of this kind count against the
// per-comment and per-question limits.
func (k Kind) ConsumesQuota() bool {
	return k == KindDriver || k == KindBaseRate || k == KindNews
}

// Draft is an unsaved key factor proposal. Implementations are limited to the
// four pointer types in this package.
type Draft interface {
	Kind() Kind
	// IsEmpty reports the untouched state; empty drafts are dropped on submit.
	IsEmpty() bool
	// Clone returns a deep copy sharing no mutable state.
	Clone() Draft
	sealed()
}

// Targeted is implemented by drafts that carry a Target.
type Targeted interface {
	Draft
	TargetRef() *Target
}

// TargetOf returns d's target, or the zero target for question links.
func TargetOf(d Draft) Target {
	if t, ok := d.(Targeted); ok {
		return *t.TargetRef()
	}
	return Target{}
}

// New returns an empty draft of kind for post p.
func New(kind Kind, p Post) Draft {
	switch kind {
	case KindBaseRate:
		return NewBaseRateDraft(p, Target{})
	case KindNews:
		return NewNewsDraft()
	case KindQuestionLink:
		return NewQuestionLinkDraft()
	default:
		return NewDriverDraft()
	}
}

// DriverDraft is a qualitative driver of the forecast.
type DriverDraft struct {
	Target Target
	Text   string
	Impact Impact
}

// NewDriverDraft returns an empty driver.
func NewDriverDraft() *DriverDraft {
	return &DriverDraft{}
}

func (*DriverDraft) Kind() Kind { return KindDriver }
func (d *DriverDraft) TargetRef() *Target { return &d.Target }
func (d *DriverDraft) IsEmpty() bool { return strings.TrimSpace(d.Text) == "" }
func (*DriverDraft) sealed() {}
func (d *DriverDraft) Clone() Draft {
	c := *d
	return &c
}

// NewsArticle is the preview metadata for a pasted news URL.
type NewsArticle struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	ImgURL      string    `json:"img_url,omitempty"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// NewsDraft cites a news article.
type NewsDraft struct {
	Target      Target
	URL         string
	Title       string
	ImgURL      string
	Source      string
	PublishedAt time.Time
	Impact      Impact
}

// NewNewsDraft returns an empty news citation.
func NewNewsDraft() *NewsDraft {
	return &NewsDraft{}
}

func (*NewsDraft) Kind() Kind { return KindNews }
func (d *NewsDraft) TargetRef() *Target { return &d.Target }
func (d *NewsDraft) IsEmpty() bool { return strings.TrimSpace(d.URL) == "" }
func (*NewsDraft) sealed() {}
func (d *NewsDraft) Clone() Draft {
	c := *d
	return &c
}

// ApplyArticle copies preview metadata onto the draft. URL and impact are
// left as the user set them.
func (d *NewsDraft) ApplyArticle(a NewsArticle) {
	d.Title = a.Title
	d.ImgURL = a.ImgURL
	d.Source = a.Source
	d.PublishedAt = a.PublishedAt
}

// Strength grades how tightly two questions move together.
type Strength string

const (
	StrengthLow    Strength = "low"
	StrengthMedium Strength = "medium"
	StrengthHigh   Strength = "high"
)

// QuestionLinkDraft links the post to another question. It never consumes
// quota and has no target.
type QuestionLinkDraft struct {
	TargetQuestionID int
	Direction        Direction
	Strength         Strength
}

// NewQuestionLinkDraft returns an empty link with medium strength.
func NewQuestionLinkDraft() *QuestionLinkDraft {
	return &QuestionLinkDraft{Strength: StrengthMedium}
}

func (*QuestionLinkDraft) Kind() Kind { return KindQuestionLink }
func (d *QuestionLinkDraft) IsEmpty() bool { return d.TargetQuestionID == 0 }
func (*QuestionLinkDraft) sealed() {}
func (d *QuestionLinkDraft) Clone() Draft {
	c := *d
	return &c
}

// CloneAll deep-copies a slice of drafts.
func CloneAll(drafts []Draft) []Draft {
	if drafts == nil {
		return nil
	}
	out := make([]Draft, len(drafts))
	for i, d := range drafts {
		out[i] = d.Clone()
	}
	return out
}

// OfKind keeps the non-empty drafts of kind.
func OfKind(drafts []Draft, kind Kind) []Draft {
	var out []Draft
	for _, d := range drafts {
		if d.Kind() == kind && !d.IsEmpty() {
			out = append(out, d)
		}
	}
	return out
}
