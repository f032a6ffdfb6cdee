// Package quota computes how many more key factors a user may add.
package quota

import (
	"errors"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

const (
	// PerQuestionLimit caps key factors one user authors on one post.
	PerQuestionLimit = 6
	// PerCommentLimit caps key factors attached to one comment.
	PerCommentLimit = 4
	// BatchCap caps new manual drafts in a single submission.
	BatchCap = 4
)

var (
	// ErrLimitReached is the blocking, non-field quota error.
	ErrLimitReached = errors.New("quota: key factor limit reached")
)

// Scope selects which limit applies. A zero CommentID means the user is
// composing a new comment and the per-question limit applies.
type Scope struct {
	UserID    int64
	PostID    int64
	CommentID int64
}

// FactorsLimit returns the remaining allowance for scope given every
// persisted key factor of the post. The result may be negative.
func FactorsLimit(factors []keyfactor.KeyFactor, scope Scope) int {
	if scope.CommentID != 0 {
		used := 0
		for _, kf := range factors {
			if kf.CommentID == scope.CommentID && countable(kf) {
				used++
			}
		}
		return PerCommentLimit - used
	}
	used := 0
	for _, kf := range factors {
		if kf.AuthorID != scope.UserID || !countable(kf) {
			continue
		}
		if scope.PostID != 0 && kf.PostID != scope.PostID {
			continue
		}
		used++
	}
	return PerQuestionLimit - used
}

func countable(kf keyfactor.KeyFactor) bool {
	return kf.Draft == nil || kf.Kind().ConsumesQuota()
}

// Quota is a computed allowance.
type Quota struct {
	Scope        Scope
	FactorsLimit int
}

// Compute evaluates the allowance for scope.
func Compute(factors []keyfactor.KeyFactor, scope Scope) Quota {
	return Quota{Scope: scope, FactorsLimit: FactorsLimit(factors, scope)}
}

// MaxDrafts bounds how many new drafts may be added in one sitting.
func (q Quota) MaxDrafts() int {
	limit := q.FactorsLimit
	if limit > BatchCap {
		limit = BatchCap
	}
	if limit < 0 {
		return 0
	}
	return limit
}

// Exhausted reports whether nothing more may be added.
func (q Quota) Exhausted() bool {
	return q.FactorsLimit <= 0
}

// Err returns ErrLimitReached when exhausted.
func (q Quota) Err() error {
	if q.Exhausted() {
		return ErrLimitReached
	}
	return nil
}

// Message is the user-facing text for an exhausted quota.
func (q Quota) Message() string {
	if !q.Exhausted() {
		return ""
	}
	if q.Scope.CommentID != 0 {
		return "This comment already has the maximum number of key factors."
	}
	return "You have reached the maximum number of key factors for this question."
}

// CanAdd reports whether one more draft fits when current drafts already
// count against the allowance.
func (q Quota) CanAdd(current int) bool {
	return current < q.MaxDrafts()
}

// Allows reports whether n new key factors fit in the remaining allowance.
func (q Quota) Allows(n int) bool {
	return n <= q.FactorsLimit && n <= BatchCap
}
