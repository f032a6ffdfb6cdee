package keyfactor

import (
	"encoding/json"
	"fmt"
	"time"
)

// VoteType distinguishes the two voting scales.
type VoteType string

const (
	VoteStrength  VoteType = "strength"
	VoteDirection VoteType = "direction"
)

// ValidVote reports whether v is an allowed value on scale t. Zero clears a
// vote on either scale.
func ValidVote(t VoteType, v int) bool {
	switch t {
	case VoteStrength:
		return v == 0 || v == 1 || v == 2 || v == 5
	case VoteDirection:
		return v == 0 || v == 1 || v == -1
	}
	return false
}

// VoteAggregate summarizes votes on one key factor.
type VoteAggregate struct {
	Score    float64 `json:"score"`
	Count    int     `json:"count"`
	UserVote int     `json:"user_vote"`
}

// KeyFactor is a persisted key factor attached to a comment.
type KeyFactor struct {
	ID        int64
	CommentID int64
	PostID    int64
	AuthorID  int64
	Draft     Draft
	Vote      VoteAggregate
	CreatedAt time.Time
}

// Kind returns the variant of the stored content.
func (k KeyFactor) Kind() Kind {
	if k.Draft == nil {
		return ""
	}
	return k.Draft.Kind()
}

type keyFactorMeta struct {
	ID        int64         `json:"id"`
	CommentID int64         `json:"comment_id"`
	PostID    int64         `json:"post_id"`
	AuthorID  int64         `json:"author_id"`
	Vote      VoteAggregate `json:"vote"`
	CreatedAt time.Time     `json:"created_at"`
}

func (k KeyFactor) MarshalJSON() ([]byte, error) {
	w, err := toWire(k.Draft)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(keyFactorMeta{
		ID:        k.ID,
		CommentID: k.CommentID,
		PostID:    k.PostID,
		AuthorID:  k.AuthorID,
		Vote:      k.Vote,
		CreatedAt: k.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &merged); err != nil {
		return nil, err
	}
	var metaFields map[string]json.RawMessage
	if err := json.Unmarshal(meta, &metaFields); err != nil {
		return nil, err
	}
	for key, value := range metaFields {
		merged[key] = value
	}
	return json.Marshal(merged)
}

func (k *KeyFactor) UnmarshalJSON(data []byte) error {
	var meta keyFactorMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("keyfactor: decode key factor: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*k = KeyFactor{
		ID:        meta.ID,
		CommentID: meta.CommentID,
		PostID:    meta.PostID,
		AuthorID:  meta.AuthorID,
		Draft:     env.Draft,
		Vote:      meta.Vote,
		CreatedAt: meta.CreatedAt,
	}
	return nil
}

// Summary renders a one-line description for lists and logs.
func Summary(d Draft) string {
	switch draft := d.(type) {
	case *DriverDraft:
		return draft.Text
	case *BaseRateDraft:
		if draft.Type == BaseRateTrend {
			value, year := "?", "?"
			if draft.Trend.ProjectedValue != nil {
				value = fmt.Sprintf("%g", *draft.Trend.ProjectedValue)
			}
			if draft.Trend.ProjectedByYear != nil {
				year = fmt.Sprintf("%d", *draft.Trend.ProjectedByYear)
			}
			return fmt.Sprintf("%s: %s %s by %s", draft.ReferenceClass, value, draft.Unit, year)
		}
		num, den := "?", "?"
		if draft.Frequency.RateNumerator != nil {
			num = fmt.Sprintf("%g", *draft.Frequency.RateNumerator)
		}
		if draft.Frequency.RateDenominator != nil {
			den = fmt.Sprintf("%g", *draft.Frequency.RateDenominator)
		}
		return fmt.Sprintf("%s: %s of %s %s", draft.ReferenceClass, num, den, draft.Unit)
	case *NewsDraft:
		if draft.Title != "" {
			return draft.Title
		}
		return draft.URL
	case *QuestionLinkDraft:
		return fmt.Sprintf("linked question #%d (%s)", draft.TargetQuestionID, draft.Strength)
	}
	return ""
}
