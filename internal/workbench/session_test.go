package workbench

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Metaculus/metaculus-sub005/internal/feed"
	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
	"github.com/Metaculus/metaculus-sub005/internal/platform"
	"github.com/Metaculus/metaculus-sub005/internal/quota"
)

type fakeClient struct {
	mu          sync.Mutex
	created     []platform.CreateCommentRequest
	appended    [][]keyfactor.Draft
	suggestions []keyfactor.Draft
	suggestErr  error
	suggestHits int
	submitErr   error
	gate        chan struct{}
	entered     chan struct{}
	nextID      int64
}

func (f *fakeClient) wait() {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
}

func (f *fakeClient) persisted(postID, commentID int64, drafts []keyfactor.Draft) platform.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	comment := platform.Comment{ID: commentID, PostID: postID}
	for _, d := range drafts {
		f.nextID++
		comment.KeyFactors = append(comment.KeyFactors, keyfactor.KeyFactor{
			ID: 100 + f.nextID, CommentID: commentID, PostID: postID, AuthorID: 7, Draft: d,
		})
	}
	return comment
}

func (f *fakeClient) CreateComment(ctx context.Context, req platform.CreateCommentRequest) (platform.Comment, error) {
	f.wait()
	f.mu.Lock()
	f.created = append(f.created, req)
	err := f.submitErr
	f.mu.Unlock()
	if err != nil {
		return platform.Comment{}, err
	}
	return f.persisted(req.OnPost, 55, req.KeyFactors), nil
}

func (f *fakeClient) AddKeyFactorsToComment(ctx context.Context, commentID int64, drafts []keyfactor.Draft) (platform.Comment, error) {
	f.wait()
	f.mu.Lock()
	f.appended = append(f.appended, drafts)
	err := f.submitErr
	f.mu.Unlock()
	if err != nil {
		return platform.Comment{}, err
	}
	return f.persisted(1, commentID, drafts), nil
}

func (f *fakeClient) GetSuggestedKeyFactors(ctx context.Context, commentID int64) ([]keyfactor.Draft, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestHits++
	return keyfactor.CloneAll(f.suggestions), f.suggestErr
}

func (f *fakeClient) FetchNewsPreview(ctx context.Context, url string) (*keyfactor.NewsArticle, error) {
	return nil, nil
}

func (f *fakeClient) VoteKeyFactor(ctx context.Context, req platform.VoteRequest) (keyfactor.VoteAggregate, error) {
	return keyfactor.VoteAggregate{Score: float64(req.Vote) * 2, Count: 1, UserVote: req.Vote}, nil
}

func (f *fakeClient) GetPost(ctx context.Context, postID int64) (keyfactor.Post, error) {
	return keyfactor.Post{ID: postID}, nil
}

func (f *fakeClient) ListKeyFactors(ctx context.Context, postID int64) ([]keyfactor.KeyFactor, error) {
	return nil, nil
}

var testPost = keyfactor.Post{ID: 1, Title: "Will it rain?", Question: &keyfactor.Question{ID: 10, Type: keyfactor.QuestionBinary}}

const validText = "Seasonal forecasts point to a wet spring"

func validDriver(text string) *keyfactor.DriverDraft {
	return &keyfactor.DriverDraft{Text: text, Impact: keyfactor.ImpactOf(keyfactor.ImpactIncrease)}
}

func TestSubmitSendsOnlyTheFilledDriver(t *testing.T) {
	client := &fakeClient{}
	s := NewSession(Config{Post: testPost, UserID: 7}, client, nil)
	drafts := s.Drafts()
	require.Len(t, drafts, 2)
	driver := drafts[0].(*keyfactor.DriverDraft)
	driver.Text = validText
	driver.Impact = keyfactor.ImpactOf(keyfactor.ImpactDecrease)
	s.SetCommentary("My forecast reasoning")

	out, err := s.Submit(context.Background(), keyfactor.KindDriver, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Sent)
	assert.Equal(t, 1, out.Added)

	require.Len(t, client.created, 1)
	sent := client.created[0]
	require.Len(t, sent.KeyFactors, 1)
	assert.Equal(t, keyfactor.KindDriver, sent.KeyFactors[0].Kind())
	assert.Equal(t, "My forecast reasoning", sent.Text)
	assert.Equal(t, int64(7), sent.AuthorID)

	reset := s.Drafts()
	require.Len(t, reset, 2)
	assert.True(t, reset[0].IsEmpty())
	assert.True(t, reset[1].IsEmpty())
	assert.Empty(t, s.Commentary())
	assert.Nil(t, s.Err())
	assert.Equal(t, int64(55), s.CommentID())
	assert.Equal(t, 1, s.Store().Len())
}

func TestSubmitAnnouncesNewCommentOnFeed(t *testing.T) {
	router := feed.NewRouter()
	sub := router.Subscribe(1)
	defer sub.Close()
	s := NewSession(Config{Post: testPost, UserID: 7}, &fakeClient{}, NewStore(1, router))
	driver := s.Drafts()[0].(*keyfactor.DriverDraft)
	driver.Text = validText
	driver.Impact = keyfactor.ImpactOf(keyfactor.ImpactIncrease)
	s.SetCommentary("My forecast reasoning")

	_, err := s.Submit(context.Background(), keyfactor.KindDriver, nil, nil)
	require.NoError(t, err)

	created := <-sub.Events
	assert.Equal(t, feed.EventCommentCreated, created.Type)
	assert.Equal(t, int64(55), created.CommentID)
	added := <-sub.Events
	assert.Equal(t, feed.EventKeyFactorAdded, added.Type)
	require.NotNil(t, added.KeyFactor)
	assert.Equal(t, int64(55), added.KeyFactor.CommentID)
}

func TestSubmitRequiresCommentaryForNewComment(t *testing.T) {
	client := &fakeClient{}
	s := NewSession(Config{Post: testPost, UserID: 7}, client, nil)
	_, err := s.Submit(context.Background(), keyfactor.KindDriver, nil, nil)
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.True(t, errors.Is(err, ErrCommentaryRequired))
	assert.NotEmpty(t, subErr.Field(FieldCommentary))
	assert.Empty(t, client.created)

	override := "text from the composer"
	s.Drafts()[0].(*keyfactor.DriverDraft).Text = validText
	s.Drafts()[0].(*keyfactor.DriverDraft).Impact = keyfactor.ImpactOf(keyfactor.ImpactUncertainty)
	_, err = s.Submit(context.Background(), keyfactor.KindDriver, nil, &override)
	require.NoError(t, err)
	assert.Equal(t, override, client.created[0].Text)
}

func TestSubmitRejectsInvalidDraftsWithoutNetwork(t *testing.T) {
	client := &fakeClient{}
	s := NewSession(Config{Post: testPost, UserID: 7, CommentID: 3}, client, nil)
	s.Drafts()[0].(*keyfactor.DriverDraft).Text = validText

	_, err := s.Submit(context.Background(), keyfactor.KindDriver, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDrafts))
	assert.True(t, s.ShowErrors())
	assert.NotEmpty(t, s.Err().Field(keyfactor.FieldImpact))
	assert.Empty(t, client.appended)
	assert.Equal(t, validText, keyfactor.Summary(s.Drafts()[0]))
}

func TestSubmitErrorLeavesStateUntouched(t *testing.T) {
	client := &fakeClient{submitErr: &platform.APIError{
		Status: http.StatusBadRequest,
		Fields: map[string][]string{"text": {"Duplicate key factor."}},
	}}
	s := NewSession(Config{Post: testPost, UserID: 7, CommentID: 3}, client, nil)
	before := s.Drafts()
	before[0].(*keyfactor.DriverDraft).Text = validText
	before[0].(*keyfactor.DriverDraft).Impact = keyfactor.ImpactOf(keyfactor.ImpactIncrease)

	_, err := s.Submit(context.Background(), keyfactor.KindDriver, nil, nil)
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, "Duplicate key factor.", subErr.Field("text"))
	assert.True(t, subErr.ValidationFailure())
	assert.Equal(t, before, s.Drafts())
	assert.Same(t, subErr, s.Err())
	assert.False(t, s.Pending())
	assert.Zero(t, s.Store().Len())

	client.submitErr = errors.New("dial tcp: connection refused")
	_, err = s.Submit(context.Background(), keyfactor.KindDriver, nil, nil)
	require.True(t, errors.As(err, &subErr))
	assert.False(t, subErr.ValidationFailure())
	assert.Contains(t, subErr.Messages()[0], "connection refused")
	assert.Equal(t, before, s.Drafts())
}

func TestConcurrentSubmitIsNoop(t *testing.T) {
	client := &fakeClient{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := NewSession(Config{Post: testPost, UserID: 7, CommentID: 3}, client, nil)
	s.Drafts()[0].(*keyfactor.DriverDraft).Text = validText
	s.Drafts()[0].(*keyfactor.DriverDraft).Impact = keyfactor.ImpactOf(keyfactor.ImpactIncrease)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), keyfactor.KindDriver, nil, nil)
		done <- err
	}()
	<-client.entered
	assert.True(t, s.Pending())

	out, err := s.Submit(context.Background(), keyfactor.KindDriver, nil, nil)
	require.NoError(t, err)
	assert.True(t, out.Skipped)

	close(client.gate)
	require.NoError(t, <-done)
	assert.Len(t, client.appended, 1)
}

func TestSubmitIncludesListedSuggestions(t *testing.T) {
	client := &fakeClient{suggestions: []keyfactor.Draft{
		validDriver("Suggested driver about wet soil conditions"),
		&keyfactor.NewsDraft{URL: "https://example.com/a"},
	}}
	s := NewSession(Config{Post: testPost, UserID: 7, CommentID: 3}, client, nil)
	require.NoError(t, s.LoadSuggestions(context.Background(), false))
	require.Equal(t, 1, s.Suggestions().Len())

	out, err := s.Submit(context.Background(), keyfactor.KindDriver, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Sent)
	assert.Zero(t, s.Suggestions().Len())
}

func TestSubmitBeyondQuotaIsBlocked(t *testing.T) {
	store := NewStore(1, nil)
	for i := int64(1); i <= 3; i++ {
		store.Merge(keyfactor.KeyFactor{ID: i, CommentID: 3, PostID: 1, AuthorID: 7, Draft: validDriver(validText)})
	}
	client := &fakeClient{}
	s := NewSession(Config{Post: testPost, UserID: 7, CommentID: 3}, client, store)
	drafts := []keyfactor.Draft{validDriver(validText), validDriver(validText + " again")}

	_, err := s.Submit(context.Background(), keyfactor.KindDriver, drafts, nil)
	assert.True(t, errors.Is(err, quota.ErrLimitReached))
	assert.Empty(t, client.appended)
}

func TestAddDraftRespectsQuota(t *testing.T) {
	store := NewStore(1, nil)
	s := NewSession(Config{Post: testPost, UserID: 7, CommentID: 3}, &fakeClient{}, store)
	for i := 0; i < quota.BatchCap-1; i++ {
		_, err := s.AddDraft(keyfactor.KindDriver)
		require.NoError(t, err)
	}
	_, err := s.AddDraft(keyfactor.KindDriver)
	assert.True(t, errors.Is(err, ErrBatchFull))

	for i := int64(1); i <= quota.PerCommentLimit; i++ {
		store.Merge(keyfactor.KeyFactor{ID: i, CommentID: 3, PostID: 1, Draft: validDriver(validText)})
	}
	_, err = s.AddDraft(keyfactor.KindBaseRate)
	assert.True(t, errors.Is(err, quota.ErrLimitReached))
	_, err = s.AddDraft(keyfactor.KindQuestionLink)
	assert.NoError(t, err)
}

func TestCancelRestoresSeededPair(t *testing.T) {
	s := NewSession(Config{Post: testPost, UserID: 7}, &fakeClient{}, nil)
	_, err := s.AddDraft(keyfactor.KindNews)
	require.NoError(t, err)
	s.SetCommentary("draft")
	s.Cancel()
	drafts := s.Drafts()
	require.Len(t, drafts, 2)
	assert.Equal(t, keyfactor.KindDriver, drafts[0].Kind())
	assert.Equal(t, keyfactor.KindBaseRate, drafts[1].Kind())
	assert.Empty(t, s.Commentary())
}

func TestLoadSuggestionsIsCoalescedAndIdempotent(t *testing.T) {
	client := &fakeClient{
		suggestions: []keyfactor.Draft{validDriver(validText)},
		gate:        make(chan struct{}),
		entered:     make(chan struct{}, 2),
	}
	s := NewSession(Config{Post: testPost, UserID: 7, CommentID: 3}, client, nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.LoadSuggestions(context.Background(), false)
		}()
	}
	<-client.entered
	time.Sleep(20 * time.Millisecond)
	close(client.gate)
	wg.Wait()
	assert.Equal(t, 1, client.suggestHits)
	assert.Equal(t, 1, s.Suggestions().Len())

	require.NoError(t, s.LoadSuggestions(context.Background(), false))
	assert.Equal(t, 1, client.suggestHits)

	client.suggestions = nil
	require.NoError(t, s.LoadSuggestions(context.Background(), true))
	assert.Equal(t, 2, client.suggestHits)
	assert.Zero(t, s.Suggestions().Len(), "a reload replaces the list outright")
}

func TestLoadSuggestionsFailureIsStored(t *testing.T) {
	client := &fakeClient{suggestErr: errors.New("timeout")}
	s := NewSession(Config{Post: testPost, UserID: 7, CommentID: 3}, client, nil)
	err := s.LoadSuggestions(context.Background(), false)
	require.Error(t, err)
	assert.EqualError(t, s.SuggestionError(), "timeout")
	assert.False(t, s.Suggestions().Loading())
	assert.Len(t, s.Drafts(), 2)
}

func TestAcceptSuggestionFallsBackToEditing(t *testing.T) {
	client := &fakeClient{
		suggestions: []keyfactor.Draft{validDriver(validText)},
		submitErr: &platform.APIError{
			Status: http.StatusBadRequest,
			Fields: map[string][]string{"text": {"Too similar to an existing key factor."}},
		},
	}
	s := NewSession(Config{Post: testPost, UserID: 7, CommentID: 3}, client, nil)
	require.NoError(t, s.LoadSuggestions(context.Background(), false))

	res, err := s.AcceptSuggestion(context.Background(), 0)
	require.Error(t, err)
	require.NotNil(t, res.Session)
	assert.True(t, res.Session.ShowErrors)
	assert.Zero(t, s.Suggestions().Len())
	assert.NotNil(t, s.Err())

	client.submitErr = nil
	_, err = s.Suggestions().Apply(res.Session.ID)
	require.NoError(t, err)
	res, err = s.AcceptSuggestion(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, res.Submitted)
	assert.Equal(t, 1, s.Store().Len())
}

func TestAcceptSuggestionRespectsQuota(t *testing.T) {
	store := NewStore(1, nil)
	for i := int64(1); i <= quota.PerCommentLimit; i++ {
		store.Merge(keyfactor.KeyFactor{ID: i, CommentID: 3, PostID: 1, AuthorID: 7, Draft: validDriver(validText)})
	}
	client := &fakeClient{suggestions: []keyfactor.Draft{validDriver("Suggested driver about wet soil conditions")}}
	s := NewSession(Config{Post: testPost, UserID: 7, CommentID: 3}, client, store)
	require.NoError(t, s.LoadSuggestions(context.Background(), false))

	res, err := s.AcceptSuggestion(context.Background(), 0)
	assert.True(t, errors.Is(err, quota.ErrLimitReached))
	assert.False(t, res.Submitted)
	assert.Nil(t, res.Session)
	assert.Empty(t, client.appended)
	assert.Equal(t, 1, s.Suggestions().Len())
	require.NotNil(t, s.Err())
}

func TestLoadSuggestionsWithoutClient(t *testing.T) {
	s := NewSession(Config{Post: testPost, UserID: 7, CommentID: 3}, nil, nil)
	err := s.LoadSuggestions(context.Background(), true)
	assert.True(t, errors.Is(err, platform.ErrNoClient))
	assert.True(t, errors.Is(s.SuggestionError(), platform.ErrNoClient))
	assert.False(t, s.Suggestions().Loading())
}

func TestVoteUpdatesOneEntry(t *testing.T) {
	router := feed.NewRouter()
	sub := router.Subscribe(1)
	defer sub.Close()
	store := NewStore(1, router)
	store.Merge(keyfactor.KeyFactor{ID: 4, PostID: 1, Draft: validDriver(validText)})
	<-sub.Events

	s := NewSession(Config{Post: testPost, UserID: 7}, &fakeClient{}, store)
	agg, err := s.Vote(context.Background(), 4, 1, keyfactor.VoteDirection)
	require.NoError(t, err)
	assert.Equal(t, float64(2), agg.Score)
	kf, ok := store.Get(4)
	require.True(t, ok)
	assert.Equal(t, 1, kf.Vote.UserVote)

	event := <-sub.Events
	assert.Equal(t, feed.EventVoteUpdated, event.Type)

	_, err = s.Vote(context.Background(), 4, 3, keyfactor.VoteDirection)
	assert.Error(t, err)
}
