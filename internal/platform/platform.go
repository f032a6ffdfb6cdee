// Package platform defines the collaborators the workbench talks to and an
// HTTP/JSON client for the platform API.
package platform

import (
	"context"
	"time"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

// Client is everything the workbench needs from the platform.
type Client interface {
	CreateComment(ctx context.Context, req CreateCommentRequest) (Comment, error)
	AddKeyFactorsToComment(ctx context.Context, commentID int64, drafts []keyfactor.Draft) (Comment, error)
	GetSuggestedKeyFactors(ctx context.Context, commentID int64) ([]keyfactor.Draft, error)
	FetchNewsPreview(ctx context.Context, url string) (*keyfactor.NewsArticle, error)
	VoteKeyFactor(ctx context.Context, req VoteRequest) (keyfactor.VoteAggregate, error)
	GetPost(ctx context.Context, postID int64) (keyfactor.Post, error)
	ListKeyFactors(ctx context.Context, postID int64) ([]keyfactor.KeyFactor, error)
}

// CreateCommentRequest creates a comment with its key factors in one call.
type CreateCommentRequest struct {
	OnPost     int64
	Text       string
	KeyFactors []keyfactor.Draft
	IsPrivate  bool
	AuthorID   int64
}

// VoteRequest casts or clears a vote. Vote 0 clears.
type VoteRequest struct {
	ID       int64
	Vote     int
	User     int64
	VoteType keyfactor.VoteType
}

// Comment is a persisted comment and the key factors attached to it.
type Comment struct {
	ID         int64                 `json:"id"`
	PostID     int64                 `json:"on_post"`
	AuthorID   int64                 `json:"author_id"`
	Text       string                `json:"text"`
	IsPrivate  bool                  `json:"is_private"`
	KeyFactors []keyfactor.KeyFactor `json:"key_factors"`
	CreatedAt  time.Time             `json:"created_at"`
}

// CommentPayload is the request body of POST /api/comments/.
type CommentPayload struct {
	OnPost     int64                `json:"on_post"`
	Text       string               `json:"text"`
	IsPrivate  bool                 `json:"is_private"`
	KeyFactors []keyfactor.Envelope `json:"key_factors"`
}

// KeyFactorsPayload is the request body of POST /api/comments/{id}/key-factors/.
type KeyFactorsPayload struct {
	KeyFactors []keyfactor.Envelope `json:"key_factors"`
}

// VotePayload is the request body of POST /api/key-factors/{id}/vote/.
type VotePayload struct {
	Vote     int                `json:"vote"`
	VoteType keyfactor.VoteType `json:"vote_type"`
}

// UserHeader carries the acting user id to the development server.
const UserHeader = "X-User-Id"
