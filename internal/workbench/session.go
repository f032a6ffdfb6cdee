// Package workbench combines manual drafts, accepted suggestions and the
// comment text into one submission and folds the result back into the
// shared key factor store.
package workbench

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
	"github.com/Metaculus/metaculus-sub005/internal/platform"
	"github.com/Metaculus/metaculus-sub005/internal/quota"
	"github.com/Metaculus/metaculus-sub005/internal/suggestion"
)

// Journal records human-readable activity. *logbook.Logbook satisfies it.
type Journal interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopJournal struct{}

func (nopJournal) Info(string, ...any)  {}
func (nopJournal) Warn(string, ...any)  {}
func (nopJournal) Error(string, ...any) {}

// Config identifies what the session edits.
type Config struct {
	Post   keyfactor.Post
	UserID int64
	// CommentID is zero when the submission also creates the comment.
	CommentID int64
	IsPrivate bool
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithJournal attaches an activity journal.
func WithJournal(j Journal) Option {
	return func(s *Session) {
		if j != nil {
			s.journal = j
		}
	}
}

// WithDismissHandler is forwarded to the suggestion manager.
func WithDismissHandler(fn func()) Option {
	return func(s *Session) {
		s.onDismiss = fn
	}
}

// Outcome describes a finished Submit call.
type Outcome struct {
	Comment platform.Comment
	// Sent is the number of key factors in the batch.
	Sent int
	// Added is how many returned key factors were new to the store.
	Added int
	// Skipped is set when another submission was already pending.
	Skipped bool
}

// Session is the state of one mounted workbench. It is safe for concurrent
// use; no lock is held across a collaborator call.
type Session struct {
	client      platform.Client
	store       *Store
	suggestions *suggestion.Manager
	logger      *zap.Logger
	journal     Journal
	onDismiss   func()
	loads       singleflight.Group

	mu            sync.Mutex
	post          keyfactor.Post
	userID        int64
	commentID     int64
	isPrivate     bool
	drafts        []keyfactor.Draft
	commentary    string
	pending       bool
	showErrors    bool
	lastErr       *SubmissionError
	loaded        bool
	suggestionErr error
}

// NewSession mounts a session seeded with one empty driver and one empty
// base rate draft.
func NewSession(cfg Config, client platform.Client, store *Store, opts ...Option) *Session {
	s := &Session{
		client:    client,
		store:     store,
		logger:    zap.NewNop(),
		journal:   nopJournal{},
		post:      cfg.Post,
		userID:    cfg.UserID,
		commentID: cfg.CommentID,
		isPrivate: cfg.IsPrivate,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.store == nil {
		s.store = NewStore(cfg.Post.ID, nil)
	}
	s.suggestions = suggestion.NewManager(
		suggestion.WithDismissHandler(s.onDismiss),
		suggestion.WithLogger(s.logger),
	)
	s.drafts = s.seed()
	return s
}

func (s *Session) seed() []keyfactor.Draft {
	return []keyfactor.Draft{
		keyfactor.NewDriverDraft(),
		keyfactor.NewBaseRateDraft(s.post, keyfactor.Target{}),
	}
}

// Post returns the post descriptor.
func (s *Session) Post() keyfactor.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.post
}

// CommentID returns the comment key factors are attached to, or zero.
func (s *Session) CommentID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commentID
}

// Store returns the shared key factor store.
func (s *Session) Store() *Store {
	return s.store
}

// Suggestions returns the suggestion manager.
func (s *Session) Suggestions() *suggestion.Manager {
	return s.suggestions
}

// Drafts returns the manual drafts. The slice is a copy; the drafts are
// edited in place by the host.
func (s *Session) Drafts() []keyfactor.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]keyfactor.Draft(nil), s.drafts...)
}

// Commentary returns the comment text.
func (s *Session) Commentary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commentary
}

// SetCommentary replaces the comment text.
func (s *Session) SetCommentary(text string) {
	s.mu.Lock()
	s.commentary = text
	s.mu.Unlock()
}

// RequiresCommentary reports whether Submit will create a comment.
func (s *Session) RequiresCommentary() bool {
	return s.CommentID() == 0
}

// SetPrivate toggles the privacy of a comment created by Submit.
func (s *Session) SetPrivate(private bool) {
	s.mu.Lock()
	s.isPrivate = private
	s.mu.Unlock()
}

// IsPrivate reports the privacy flag.
func (s *Session) IsPrivate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPrivate
}

// Pending reports whether a submission is in flight.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// ShowErrors reports whether inline validation errors should be displayed.
func (s *Session) ShowErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showErrors
}

// Err returns the last submission error.
func (s *Session) Err() *SubmissionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ClearError dismisses the submission error banner.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

// SuggestionError returns the last suggestion load failure.
func (s *Session) SuggestionError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suggestionErr
}

// Quota computes the allowance from the latest store contents.
func (s *Session) Quota() quota.Quota {
	s.mu.Lock()
	scope := quota.Scope{UserID: s.userID, PostID: s.post.ID, CommentID: s.commentID}
	s.mu.Unlock()
	return quota.Compute(s.store.Snapshot(), scope)
}

// Validate validates a draft against this session's post.
func (s *Session) Validate(d keyfactor.Draft) keyfactor.Validation {
	return keyfactor.ValidateFor(d, s.Post())
}

// AddDraft appends an empty draft of kind. It fails with the quota error
// when nothing may be added, or ErrBatchFull when the batch is full.
func (s *Session) AddDraft(kind keyfactor.Kind) (keyfactor.Draft, error) {
	if !slices.Contains(keyfactor.Kinds, kind) {
		return nil, fmt.Errorf("workbench: unknown draft kind %q", kind)
	}
	q := s.Quota()
	if err := q.Err(); err != nil && kind.ConsumesQuota() {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, d := range s.drafts {
		if d.Kind() == kind {
			count++
		}
	}
	if kind.ConsumesQuota() && !q.CanAdd(count) {
		return nil, fmt.Errorf("%w: at most %d", ErrBatchFull, q.MaxDrafts())
	}
	d := keyfactor.New(kind, s.post)
	s.drafts = append(s.drafts, d)
	return d, nil
}

// RemoveDraft deletes manual draft i.
func (s *Session) RemoveDraft(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.drafts) {
		return fmt.Errorf("%w: %d", ErrDraftIndex, i)
	}
	s.drafts = append(s.drafts[:i:i], s.drafts[i+1:]...)
	return nil
}

// Cancel resets the drafts to the seeded pair, clears the comment text and
// errors, and discards open suggestion edits.
func (s *Session) Cancel() {
	for _, es := range s.suggestions.Sessions() {
		_, _ = s.suggestions.Discard(es.ID)
	}
	s.mu.Lock()
	s.drafts = s.seed()
	s.commentary = ""
	s.lastErr = nil
	s.showErrors = false
	s.mu.Unlock()
}

// Submit sends the non-empty manual drafts of kind plus the listed
// suggestions of kind. drafts, when non-nil, replaces the manual drafts;
// commentaryOverride, when non-nil, replaces the comment text. A call made
// while another is pending returns Outcome.Skipped and no error.
func (s *Session) Submit(ctx context.Context, kind keyfactor.Kind, drafts []keyfactor.Draft, commentaryOverride *string) (Outcome, error) {
	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return Outcome{Skipped: true}, nil
	}
	text := s.commentary
	if commentaryOverride != nil {
		text = *commentaryOverride
	}
	commentID := s.commentID
	if commentID == 0 && strings.TrimSpace(text) == "" {
		s.lastErr = localError(ErrCommentaryRequired, keyfactor.FieldErrors{FieldCommentary: "Comment text is required."})
		err := s.lastErr
		s.mu.Unlock()
		return Outcome{}, err
	}
	if drafts == nil {
		drafts = s.drafts
	}
	var manual []keyfactor.Draft
	for _, d := range drafts {
		if d != nil && d.Kind() == kind && !d.IsEmpty() {
			manual = append(manual, d)
		}
	}
	listed := s.suggestions.OfKind(kind)
	batch := append(append([]keyfactor.Draft(nil), manual...), listed...)

	invalid := keyfactor.FieldErrors{}
	for _, d := range batch {
		v := keyfactor.ValidateFor(d, s.post)
		for field, msg := range v.Errors {
			if _, seen := invalid[field]; !seen {
				invalid[field] = msg
			}
		}
	}
	if len(invalid) > 0 {
		s.showErrors = true
		s.lastErr = localError(ErrInvalidDrafts, invalid)
		err := s.lastErr
		s.mu.Unlock()
		return Outcome{}, err
	}
	if len(batch) == 0 && commentID != 0 {
		s.lastErr = localError(ErrNothingToSubmit, nil, "Add at least one key factor.")
		err := s.lastErr
		s.mu.Unlock()
		return Outcome{}, err
	}
	s.mu.Unlock()

	if q := s.Quota(); len(batch) > 0 && !q.Allows(len(batch)) {
		msg := q.Message()
		if msg == "" {
			msg = fmt.Sprintf("You can add at most %d key factors here.", q.MaxDrafts())
		}
		s.mu.Lock()
		s.lastErr = localError(quota.ErrLimitReached, nil, msg)
		err := s.lastErr
		s.mu.Unlock()
		return Outcome{}, err
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return Outcome{Skipped: true}, nil
	}
	s.pending = true
	isPrivate := s.isPrivate
	s.mu.Unlock()

	comment, err := s.persist(ctx, commentID, text, isPrivate, keyfactor.CloneAll(batch))

	s.mu.Lock()
	s.pending = false
	if err != nil {
		s.lastErr = convertError(err)
		subErr := s.lastErr
		s.mu.Unlock()
		s.logger.Warn("submission failed", zap.String("kind", string(kind)), zap.Error(err))
		s.journal.Error("submitting %d %s key factor(s) failed: %v", len(batch), kind, subErr)
		return Outcome{}, subErr
	}
	s.drafts = s.seed()
	s.commentary = ""
	s.lastErr = nil
	s.showErrors = false
	created := s.commentID == 0
	if created {
		s.commentID = comment.ID
	}
	s.mu.Unlock()

	if created {
		s.store.commentCreated(comment.ID)
	}
	s.suggestions.Remove(listed...)
	added := s.store.Merge(comment.KeyFactors...)
	s.logger.Info("submission accepted",
		zap.Int64("comment", comment.ID),
		zap.String("kind", string(kind)),
		zap.Int("sent", len(batch)),
		zap.Int("added", added),
	)
	s.journal.Info("added %d %s key factor(s) to comment %d", added, kind, comment.ID)
	return Outcome{Comment: comment, Sent: len(batch), Added: added}, nil
}

func (s *Session) persist(ctx context.Context, commentID int64, text string, isPrivate bool, batch []keyfactor.Draft) (platform.Comment, error) {
	if s.client == nil {
		return platform.Comment{}, platform.ErrNoClient
	}
	if commentID == 0 {
		return s.client.CreateComment(ctx, platform.CreateCommentRequest{
			OnPost:     s.post.ID,
			Text:       text,
			KeyFactors: batch,
			IsPrivate:  isPrivate,
			AuthorID:   s.userID,
		})
	}
	return s.client.AddKeyFactorsToComment(ctx, commentID, batch)
}

// AcceptSuggestion submits suggestion i on its own. A validation failure
// moves it into an editing session with errors shown.
func (s *Session) AcceptSuggestion(ctx context.Context, i int) (suggestion.AcceptResult, error) {
	res, err := s.suggestions.Accept(ctx, i, func(ctx context.Context, d keyfactor.Draft) error {
		if q := s.Quota(); d.Kind().ConsumesQuota() && !q.Allows(1) {
			msg := q.Message()
			if msg == "" {
				msg = fmt.Sprintf("You can add at most %d key factors here.", q.MaxDrafts())
			}
			return localError(quota.ErrLimitReached, nil, msg)
		}
		s.mu.Lock()
		if s.pending {
			s.mu.Unlock()
			return ErrBusy
		}
		commentID := s.commentID
		text := s.commentary
		if commentID == 0 && strings.TrimSpace(text) == "" {
			s.mu.Unlock()
			return localError(ErrCommentaryRequired, keyfactor.FieldErrors{FieldCommentary: "Comment text is required."})
		}
		if v := keyfactor.ValidateFor(d, s.post); !v.Valid {
			s.mu.Unlock()
			return localError(ErrInvalidDrafts, v.Errors)
		}
		s.pending = true
		isPrivate := s.isPrivate
		s.mu.Unlock()

		comment, err := s.persist(ctx, commentID, text, isPrivate, []keyfactor.Draft{d})

		s.mu.Lock()
		s.pending = false
		created := err == nil && s.commentID == 0
		if created {
			s.commentID = comment.ID
			s.commentary = ""
		}
		s.mu.Unlock()
		if err != nil {
			return convertError(err)
		}
		if created {
			s.store.commentCreated(comment.ID)
		}
		s.store.Merge(comment.KeyFactors...)
		return nil
	})
	if err != nil {
		if !errors.Is(err, suggestion.ErrIndexOutOfRange) && !errors.Is(err, ErrBusy) {
			s.mu.Lock()
			s.lastErr = convertError(err)
			s.mu.Unlock()
		}
		s.journal.Warn("accepting suggestion %d failed: %v", i, err)
		return res, err
	}
	s.journal.Info("accepted suggestion %d", i)
	return res, nil
}

// LoadSuggestions fetches suggestions for the comment once; force reloads
// and replaces the list. Concurrent calls share one fetch. Failures are
// kept in SuggestionError and returned, and never touch the drafts.
func (s *Session) LoadSuggestions(ctx context.Context, force bool) error {
	s.mu.Lock()
	commentID := s.commentID
	loaded := s.loaded
	s.mu.Unlock()
	if commentID == 0 || (loaded && !force) {
		return nil
	}
	if s.client == nil {
		s.mu.Lock()
		s.suggestionErr = platform.ErrNoClient
		s.mu.Unlock()
		return platform.ErrNoClient
	}
	_, err, _ := s.loads.Do(fmt.Sprintf("suggestions:%d", commentID), func() (any, error) {
		s.suggestions.SetLoading(true)
		drafts, err := s.client.GetSuggestedKeyFactors(ctx, commentID)
		if err != nil {
			s.suggestions.SetLoading(false)
			return nil, err
		}
		s.suggestions.Replace(drafts)
		return len(drafts), nil
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.suggestionErr = err
		s.logger.Warn("loading suggestions failed", zap.Int64("comment", commentID), zap.Error(err))
		return fmt.Errorf("workbench: load suggestions: %w", err)
	}
	s.loaded = true
	s.suggestionErr = nil
	return nil
}

// Refresh merges the post's persisted key factors into the store.
func (s *Session) Refresh(ctx context.Context) error {
	if s.client == nil {
		return platform.ErrNoClient
	}
	factors, err := s.client.ListKeyFactors(ctx, s.Post().ID)
	if err != nil {
		return fmt.Errorf("workbench: refresh: %w", err)
	}
	s.store.Merge(factors...)
	return nil
}

// Vote casts a vote on a persisted key factor and updates its aggregate in
// the store.
func (s *Session) Vote(ctx context.Context, id int64, vote int, voteType keyfactor.VoteType) (keyfactor.VoteAggregate, error) {
	if !keyfactor.ValidVote(voteType, vote) {
		return keyfactor.VoteAggregate{}, fmt.Errorf("workbench: invalid %s vote %d", voteType, vote)
	}
	if s.client == nil {
		return keyfactor.VoteAggregate{}, platform.ErrNoClient
	}
	s.mu.Lock()
	user := s.userID
	s.mu.Unlock()
	agg, err := s.client.VoteKeyFactor(ctx, platform.VoteRequest{ID: id, Vote: vote, User: user, VoteType: voteType})
	if err != nil {
		return keyfactor.VoteAggregate{}, fmt.Errorf("workbench: vote: %w", err)
	}
	s.store.UpdateVote(id, agg)
	return agg, nil
}
