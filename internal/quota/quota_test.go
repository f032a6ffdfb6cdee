package quota

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

func factor(id, comment, author int64) keyfactor.KeyFactor {
	return keyfactor.KeyFactor{
		ID:        id,
		CommentID: comment,
		PostID:    1,
		AuthorID:  author,
		Draft:     &keyfactor.DriverDraft{Text: "driver"},
	}
}

func TestFactorsLimitPerComment(t *testing.T) {
	factors := []keyfactor.KeyFactor{
		factor(1, 10, 7), factor(2, 10, 7), factor(3, 10, 7), factor(4, 10, 7),
		factor(5, 11, 7),
	}
	q := Compute(factors, Scope{UserID: 7, PostID: 1, CommentID: 10})
	assert.Equal(t, 0, q.FactorsLimit)
	assert.True(t, q.Exhausted())
	assert.True(t, errors.Is(q.Err(), ErrLimitReached))
	assert.Contains(t, q.Message(), "comment")
	assert.False(t, q.CanAdd(0))
}

func TestFactorsLimitPerQuestion(t *testing.T) {
	factors := []keyfactor.KeyFactor{
		factor(1, 20, 7), factor(2, 21, 7),
		factor(3, 22, 8),
	}
	q := Compute(factors, Scope{UserID: 7, PostID: 1})
	assert.Equal(t, 4, q.FactorsLimit)
	assert.Equal(t, 4, q.MaxDrafts())
	assert.NoError(t, q.Err())
	assert.True(t, q.CanAdd(3))
	assert.False(t, q.CanAdd(4))
}

func TestMaxDraftsIsBoundedByBatchCap(t *testing.T) {
	q := Compute(nil, Scope{UserID: 7})
	assert.Equal(t, PerQuestionLimit, q.FactorsLimit)
	assert.Equal(t, BatchCap, q.MaxDrafts())
	assert.True(t, q.Allows(4))
	assert.False(t, q.Allows(5))
}

func TestQuestionLinksDoNotCount(t *testing.T) {
	link := factor(9, 10, 7)
	link.Draft = &keyfactor.QuestionLinkDraft{TargetQuestionID: 3}
	q := Compute([]keyfactor.KeyFactor{link}, Scope{UserID: 7, CommentID: 10})
	assert.Equal(t, PerCommentLimit, q.FactorsLimit)
}

func TestNegativeLimitClampsMaxDrafts(t *testing.T) {
	q := Quota{FactorsLimit: -2}
	assert.Equal(t, 0, q.MaxDrafts())
	assert.True(t, q.Exhausted())
}
