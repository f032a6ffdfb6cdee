package keyfactor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrDiscriminator is returned when a payload names zero or several variants.
var ErrDiscriminator = errors.New("keyfactor: exactly one of driver, base_rate, news or question_link is required")

type driverWire struct {
	Text            string `json:"text"`
	ImpactDirection *int   `json:"impact_direction"`
	Certainty       *int   `json:"certainty"`
}

type baseRateWire struct {
	Type            BaseRateType  `json:"type"`
	ReferenceClass  string        `json:"reference_class"`
	Unit            string        `json:"unit"`
	Source          string        `json:"source"`
	RateNumerator   *float64      `json:"rate_numerator,omitempty"`
	RateDenominator *float64      `json:"rate_denominator,omitempty"`
	ProjectedValue  *float64      `json:"projected_value,omitempty"`
	ProjectedByYear *int          `json:"projected_by_year,omitempty"`
	Extrapolation   Extrapolation `json:"extrapolation,omitempty"`
	BasedOn         string        `json:"based_on,omitempty"`
}

type newsWire struct {
	URL             string     `json:"url"`
	Title           string     `json:"title,omitempty"`
	ImgURL          string     `json:"img_url,omitempty"`
	Source          string     `json:"source,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	ImpactDirection *int       `json:"impact_direction"`
	Certainty       *int       `json:"certainty"`
}

type questionLinkWire struct {
	TargetQuestionID int      `json:"target_question_id"`
	Direction        int      `json:"direction"`
	Strength         Strength `json:"strength"`
}

type envelopeWire struct {
	Driver         *driverWire       `json:"driver,omitempty"`
	BaseRate       *baseRateWire     `json:"base_rate,omitempty"`
	News           *newsWire         `json:"news,omitempty"`
	QuestionLink   *questionLinkWire `json:"question_link,omitempty"`
	QuestionID     *int              `json:"question_id,omitempty"`
	QuestionOption *string           `json:"question_option,omitempty"`
}

// Envelope wraps a Draft for JSON transport.
type Envelope struct {
	Draft Draft
}

// Wrap converts drafts into envelopes.
func Wrap(drafts []Draft) []Envelope {
	out := make([]Envelope, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, Envelope{Draft: d})
	}
	return out
}

// Unwrap extracts the drafts from envelopes.
func Unwrap(envs []Envelope) []Draft {
	out := make([]Draft, 0, len(envs))
	for _, e := range envs {
		if e.Draft != nil {
			out = append(out, e.Draft)
		}
	}
	return out
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	w, err := toWire(e.Draft)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w envelopeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("keyfactor: decode draft: %w", err)
	}
	d, err := fromWire(w)
	if err != nil {
		return err
	}
	e.Draft = d
	return nil
}

// MarshalDraft encodes d with its discriminating key.
func MarshalDraft(d Draft) ([]byte, error) {
	return json.Marshal(Envelope{Draft: d})
}

// UnmarshalDraft decodes a payload produced by MarshalDraft.
func UnmarshalDraft(data []byte) (Draft, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e.Draft, nil
}

func toWire(d Draft) (envelopeWire, error) {
	var w envelopeWire
	switch draft := d.(type) {
	case *DriverDraft:
		dir, cert := impactWire(draft.Impact)
		w.Driver = &driverWire{Text: draft.Text, ImpactDirection: dir, Certainty: cert}
		setTargetWire(&w, draft.Target)
	case *BaseRateDraft:
		br := &baseRateWire{
			Type:           draft.Type,
			ReferenceClass: draft.ReferenceClass,
			Unit:           draft.Unit,
			Source:         draft.Source,
		}
		if br.Type == BaseRateTrend {
			br.ProjectedValue = draft.Trend.ProjectedValue
			br.ProjectedByYear = draft.Trend.ProjectedByYear
			br.Extrapolation = draft.Trend.Extrapolation
			br.BasedOn = draft.Trend.BasedOn
		} else {
			br.Type = BaseRateFrequency
			br.RateNumerator = draft.Frequency.RateNumerator
			br.RateDenominator = draft.Frequency.RateDenominator
		}
		w.BaseRate = br
		setTargetWire(&w, draft.Target)
	case *NewsDraft:
		dir, cert := impactWire(draft.Impact)
		n := &newsWire{
			URL:             draft.URL,
			Title:           draft.Title,
			ImgURL:          draft.ImgURL,
			Source:          draft.Source,
			ImpactDirection: dir,
			Certainty:       cert,
		}
		if !draft.PublishedAt.IsZero() {
			published := draft.PublishedAt.UTC()
			n.PublishedAt = &published
		}
		w.News = n
		setTargetWire(&w, draft.Target)
	case *QuestionLinkDraft:
		w.QuestionLink = &questionLinkWire{
			TargetQuestionID: draft.TargetQuestionID,
			Direction:        int(draft.Direction),
			Strength:         draft.Strength,
		}
	default:
		return w, ErrDiscriminator
	}
	return w, nil
}

func fromWire(w envelopeWire) (Draft, error) {
	present := 0
	for _, set := range []bool{w.Driver != nil, w.BaseRate != nil, w.News != nil, w.QuestionLink != nil} {
		if set {
			present++
		}
	}
	if present != 1 {
		return nil, ErrDiscriminator
	}
	target := Target{}
	if w.QuestionID != nil {
		target.QuestionID = *w.QuestionID
	}
	if w.QuestionOption != nil {
		target.Option = *w.QuestionOption
	}
	switch {
	case w.Driver != nil:
		return &DriverDraft{
			Target: target,
			Text:   w.Driver.Text,
			Impact: impactFromWire(w.Driver.ImpactDirection, w.Driver.Certainty),
		}, nil
	case w.BaseRate != nil:
		br := &BaseRateDraft{
			Target:         target,
			Type:           w.BaseRate.Type,
			ReferenceClass: w.BaseRate.ReferenceClass,
			Unit:           w.BaseRate.Unit,
			Source:         w.BaseRate.Source,
		}
		if br.Type == BaseRateTrend {
			br.Trend = Trend{
				ProjectedValue:  w.BaseRate.ProjectedValue,
				ProjectedByYear: w.BaseRate.ProjectedByYear,
				Extrapolation:   w.BaseRate.Extrapolation,
				BasedOn:         w.BaseRate.BasedOn,
			}
		} else {
			br.Type = BaseRateFrequency
			br.Frequency = Frequency{
				RateNumerator:   w.BaseRate.RateNumerator,
				RateDenominator: w.BaseRate.RateDenominator,
			}
		}
		return br, nil
	case w.News != nil:
		n := &NewsDraft{
			Target: target,
			URL:    w.News.URL,
			Title:  w.News.Title,
			ImgURL: w.News.ImgURL,
			Source: w.News.Source,
			Impact: impactFromWire(w.News.ImpactDirection, w.News.Certainty),
		}
		if w.News.PublishedAt != nil {
			n.PublishedAt = w.News.PublishedAt.UTC()
		}
		return n, nil
	default:
		return &QuestionLinkDraft{
			TargetQuestionID: w.QuestionLink.TargetQuestionID,
			Direction:        Direction(w.QuestionLink.Direction),
			Strength:         w.QuestionLink.Strength,
		}, nil
	}
}

func setTargetWire(w *envelopeWire, t Target) {
	if t.QuestionID != 0 {
		id := t.QuestionID
		w.QuestionID = &id
	}
	if t.Option != "" {
		opt := t.Option
		w.QuestionOption = &opt
	}
}

func impactWire(i Impact) (*int, *int) {
	var dir, cert *int
	if i.Direction.Valid() {
		v := int(i.Direction)
		dir = &v
	}
	if i.Certainty == CertaintyUncertain {
		v := int(CertaintyUncertain)
		cert = &v
	}
	return dir, cert
}

func impactFromWire(dir, cert *int) Impact {
	var i Impact
	if dir != nil && Direction(*dir).Valid() {
		i.Direction = Direction(*dir)
	}
	if cert != nil && Certainty(*cert) == CertaintyUncertain {
		i.Certainty = CertaintyUncertain
	}
	return i
}
