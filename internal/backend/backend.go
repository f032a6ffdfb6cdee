// Package backend is a local, server-authoritative implementation of the
// platform collaborators. It re-validates every draft, enforces quotas and
// assigns ids, persisting through a Store.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
	"github.com/Metaculus/metaculus-sub005/internal/platform"
	"github.com/Metaculus/metaculus-sub005/internal/preview"
	"github.com/Metaculus/metaculus-sub005/internal/quota"
)

// ErrNotFound is returned by stores for missing rows.
var ErrNotFound = errors.New("backend: not found")

// CommentRecord is a stored comment without its key factors.
type CommentRecord struct {
	ID        int64
	PostID    int64
	AuthorID  int64
	Text      string
	IsPrivate bool
	CreatedAt time.Time
}

// Store persists comments, key factors and votes.
type Store interface {
	// CreateComment inserts the comment and its key factors atomically.
	CreateComment(ctx context.Context, c CommentRecord, drafts []keyfactor.Draft) (CommentRecord, []keyfactor.KeyFactor, error)
	// AddKeyFactors attaches drafts to an existing comment, authored by the
	// comment's author.
	AddKeyFactors(ctx context.Context, commentID int64, drafts []keyfactor.Draft, at time.Time) ([]keyfactor.KeyFactor, error)
	GetComment(ctx context.Context, id int64) (CommentRecord, error)
	// ListKeyFactors returns the post's key factors visible to viewerID with
	// vote aggregates from viewerID's perspective.
	ListKeyFactors(ctx context.Context, postID, viewerID int64) ([]keyfactor.KeyFactor, error)
	GetKeyFactor(ctx context.Context, id, viewerID int64) (keyfactor.KeyFactor, error)
	// SetVote records a vote; value 0 clears it.
	SetVote(ctx context.Context, keyFactorID, userID int64, voteType keyfactor.VoteType, value int, at time.Time) error
}

// PostSource resolves post descriptors.
type PostSource interface {
	Post(id int64) (keyfactor.Post, bool)
}

// Suggester produces automated suggestions for a comment.
type Suggester interface {
	Suggest(ctx context.Context, post keyfactor.Post, comment CommentRecord) ([]keyfactor.Draft, error)
}

type userKey struct{}

// WithUser attaches the acting user to ctx.
func WithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the acting user attached by WithUser.
func UserFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userKey{}).(int64)
	return id
}

// Option customizes a Service.
type Option func(*Service)

// WithSuggester sets the automated suggestion source.
func WithSuggester(s Suggester) Option {
	return func(svc *Service) {
		svc.suggester = s
	}
}

// WithPreviewFetcher sets the news preview source.
func WithPreviewFetcher(f preview.Fetcher) Option {
	return func(svc *Service) {
		svc.previews = f
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(svc *Service) {
		if clock != nil {
			svc.clock = clock
		}
	}
}

// WithDefaultUser sets the user assumed when a call carries none.
func WithDefaultUser(id int64) Option {
	return func(svc *Service) {
		svc.defaultUser = id
	}
}

// Service implements platform.Client against a Store.
type Service struct {
	store       Store
	posts       PostSource
	suggester   Suggester
	previews    preview.Fetcher
	logger      *zap.Logger
	clock       func() time.Time
	defaultUser int64
}

var _ platform.Client = (*Service)(nil)

// New returns a service over store and posts.
func New(store Store, posts PostSource, opts ...Option) *Service {
	svc := &Service{
		store:  store,
		posts:  posts,
		logger: zap.NewNop(),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

func (s *Service) actor(ctx context.Context, explicit int64) int64 {
	if explicit != 0 {
		return explicit
	}
	if id := UserFrom(ctx); id != 0 {
		return id
	}
	return s.defaultUser
}

func (s *Service) post(id int64) (keyfactor.Post, error) {
	if s.posts != nil {
		if p, ok := s.posts.Post(id); ok {
			return p, nil
		}
	}
	return keyfactor.Post{}, notFound("Post not found.")
}

// CreateComment validates and stores a new comment with its key factors.
func (s *Service) CreateComment(ctx context.Context, req platform.CreateCommentRequest) (platform.Comment, error) {
	author := s.actor(ctx, req.AuthorID)
	if author == 0 {
		return platform.Comment{}, &platform.APIError{Status: http.StatusUnauthorized, NonField: []string{"Authentication required."}}
	}
	post, err := s.post(req.OnPost)
	if err != nil {
		return platform.Comment{}, err
	}
	fields := map[string][]string{}
	if strings.TrimSpace(req.Text) == "" {
		fields["text"] = []string{"This field may not be blank."}
	}
	validateBatch(post, req.KeyFactors, fields)
	if len(fields) > 0 {
		return platform.Comment{}, &platform.APIError{Status: http.StatusBadRequest, Fields: fields}
	}
	existing, err := s.store.ListKeyFactors(ctx, post.ID, author)
	if err != nil {
		return platform.Comment{}, fmt.Errorf("backend: create comment: %w", err)
	}
	n := countable(req.KeyFactors)
	limit := min(quota.FactorsLimit(existing, quota.Scope{UserID: author, PostID: post.ID}), quota.PerCommentLimit)
	if n > 0 && n > limit {
		return platform.Comment{}, quotaError(limit)
	}
	record, factors, err := s.store.CreateComment(ctx, CommentRecord{
		PostID:    post.ID,
		AuthorID:  author,
		Text:      strings.TrimSpace(req.Text),
		IsPrivate: req.IsPrivate,
		CreatedAt: s.clock(),
	}, req.KeyFactors)
	if err != nil {
		return platform.Comment{}, fmt.Errorf("backend: create comment: %w", err)
	}
	s.logger.Info("comment created",
		zap.Int64("comment", record.ID),
		zap.Int64("post", post.ID),
		zap.Int("key_factors", len(factors)),
	)
	return toComment(record, factors), nil
}

// AddKeyFactorsToComment validates drafts and attaches them to a comment.
func (s *Service) AddKeyFactorsToComment(ctx context.Context, commentID int64, drafts []keyfactor.Draft) (platform.Comment, error) {
	comment, err := s.comment(ctx, commentID)
	if err != nil {
		return platform.Comment{}, err
	}
	if actor := s.actor(ctx, 0); actor != 0 && actor != comment.AuthorID {
		return platform.Comment{}, &platform.APIError{Status: http.StatusForbidden, NonField: []string{"You can only add key factors to your own comments."}}
	}
	post, err := s.post(comment.PostID)
	if err != nil {
		return platform.Comment{}, err
	}
	if len(drafts) == 0 {
		return platform.Comment{}, &platform.APIError{Status: http.StatusBadRequest, NonField: []string{"At least one key factor is required."}}
	}
	fields := map[string][]string{}
	validateBatch(post, drafts, fields)
	if len(fields) > 0 {
		return platform.Comment{}, &platform.APIError{Status: http.StatusBadRequest, Fields: fields}
	}
	existing, err := s.store.ListKeyFactors(ctx, post.ID, comment.AuthorID)
	if err != nil {
		return platform.Comment{}, fmt.Errorf("backend: add key factors: %w", err)
	}
	limit := min(
		quota.FactorsLimit(existing, quota.Scope{CommentID: comment.ID}),
		quota.FactorsLimit(existing, quota.Scope{UserID: comment.AuthorID, PostID: post.ID}),
	)
	if n := countable(drafts); n > 0 && n > limit {
		return platform.Comment{}, quotaError(limit)
	}
	if _, err := s.store.AddKeyFactors(ctx, comment.ID, drafts, s.clock()); err != nil {
		return platform.Comment{}, fmt.Errorf("backend: add key factors: %w", err)
	}
	all, err := s.store.ListKeyFactors(ctx, post.ID, comment.AuthorID)
	if err != nil {
		return platform.Comment{}, fmt.Errorf("backend: add key factors: %w", err)
	}
	var attached []keyfactor.KeyFactor
	for _, kf := range all {
		if kf.CommentID == comment.ID {
			attached = append(attached, kf)
		}
	}
	s.logger.Info("key factors added", zap.Int64("comment", comment.ID), zap.Int("count", len(drafts)))
	return toComment(comment, attached), nil
}

// GetSuggestedKeyFactors asks the suggester for drafts on a comment.
func (s *Service) GetSuggestedKeyFactors(ctx context.Context, commentID int64) ([]keyfactor.Draft, error) {
	comment, err := s.comment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if s.suggester == nil {
		return nil, nil
	}
	post, err := s.post(comment.PostID)
	if err != nil {
		return nil, err
	}
	drafts, err := s.suggester.Suggest(ctx, post, comment)
	if err != nil {
		return nil, fmt.Errorf("backend: suggest: %w", err)
	}
	return drafts, nil
}

// FetchNewsPreview resolves article metadata through the preview fetcher.
func (s *Service) FetchNewsPreview(ctx context.Context, rawURL string) (*keyfactor.NewsArticle, error) {
	if !keyfactor.IsValidURL(rawURL) {
		return nil, &platform.APIError{Status: http.StatusBadRequest, Fields: map[string][]string{"url": {"Enter a valid URL."}}}
	}
	if s.previews == nil {
		return nil, nil
	}
	return s.previews.Fetch(ctx, rawURL)
}

// VoteKeyFactor records a vote and returns the fresh aggregate.
func (s *Service) VoteKeyFactor(ctx context.Context, req platform.VoteRequest) (keyfactor.VoteAggregate, error) {
	user := s.actor(ctx, req.User)
	if user == 0 {
		return keyfactor.VoteAggregate{}, &platform.APIError{Status: http.StatusUnauthorized, NonField: []string{"Authentication required."}}
	}
	if !keyfactor.ValidVote(req.VoteType, req.Vote) {
		return keyfactor.VoteAggregate{}, &platform.APIError{
			Status: http.StatusBadRequest,
			Fields: map[string][]string{"vote": {fmt.Sprintf("%d is not a valid %s vote.", req.Vote, req.VoteType)}},
		}
	}
	if _, err := s.keyFactor(ctx, req.ID, user); err != nil {
		return keyfactor.VoteAggregate{}, err
	}
	if err := s.store.SetVote(ctx, req.ID, user, req.VoteType, req.Vote, s.clock()); err != nil {
		return keyfactor.VoteAggregate{}, fmt.Errorf("backend: vote: %w", err)
	}
	kf, err := s.keyFactor(ctx, req.ID, user)
	if err != nil {
		return keyfactor.VoteAggregate{}, err
	}
	return kf.Vote, nil
}

// GetPost returns a post descriptor.
func (s *Service) GetPost(ctx context.Context, postID int64) (keyfactor.Post, error) {
	return s.post(postID)
}

// ListKeyFactors returns the post's key factors visible to the acting user.
func (s *Service) ListKeyFactors(ctx context.Context, postID int64) ([]keyfactor.KeyFactor, error) {
	if _, err := s.post(postID); err != nil {
		return nil, err
	}
	factors, err := s.store.ListKeyFactors(ctx, postID, s.actor(ctx, 0))
	if err != nil {
		return nil, fmt.Errorf("backend: list key factors: %w", err)
	}
	return factors, nil
}

func (s *Service) comment(ctx context.Context, id int64) (CommentRecord, error) {
	c, err := s.store.GetComment(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return CommentRecord{}, notFound("Comment not found.")
	}
	if err != nil {
		return CommentRecord{}, fmt.Errorf("backend: get comment: %w", err)
	}
	return c, nil
}

func (s *Service) keyFactor(ctx context.Context, id, viewer int64) (keyfactor.KeyFactor, error) {
	kf, err := s.store.GetKeyFactor(ctx, id, viewer)
	if errors.Is(err, ErrNotFound) {
		return keyfactor.KeyFactor{}, notFound("Key factor not found.")
	}
	if err != nil {
		return keyfactor.KeyFactor{}, fmt.Errorf("backend: get key factor: %w", err)
	}
	return kf, nil
}

func validateBatch(post keyfactor.Post, drafts []keyfactor.Draft, fields map[string][]string) {
	for _, d := range drafts {
		if d == nil || d.IsEmpty() {
			fields["key_factors"] = appendOnce(fields["key_factors"], "Empty key factors are not allowed.")
			continue
		}
		v := keyfactor.ValidateFor(d, post)
		for _, field := range v.Errors.Fields() {
			fields[field] = appendOnce(fields[field], v.Errors[field])
		}
	}
}

func appendOnce(list []string, msg string) []string {
	for _, existing := range list {
		if existing == msg {
			return list
		}
	}
	return append(list, msg)
}

func countable(drafts []keyfactor.Draft) int {
	n := 0
	for _, d := range drafts {
		if d != nil && d.Kind().ConsumesQuota() {
			n++
		}
	}
	return n
}

func quotaError(limit int) error {
	msg := "You have reached the maximum number of key factors."
	if limit > 0 {
		msg = fmt.Sprintf("You can add at most %d more key factors.", limit)
	}
	return &platform.APIError{Status: http.StatusBadRequest, NonField: []string{msg}}
}

func notFound(msg string) error {
	return &platform.APIError{Status: http.StatusNotFound, NonField: []string{msg}}
}

func toComment(c CommentRecord, factors []keyfactor.KeyFactor) platform.Comment {
	return platform.Comment{
		ID:         c.ID,
		PostID:     c.PostID,
		AuthorID:   c.AuthorID,
		Text:       c.Text,
		IsPrivate:  c.IsPrivate,
		KeyFactors: factors,
		CreatedAt:  c.CreatedAt,
	}
}
