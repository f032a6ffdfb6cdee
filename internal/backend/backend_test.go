package backend_test

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Metaculus/metaculus-sub005/internal/backend"
	"github.com/Metaculus/metaculus-sub005/internal/backend/sqlite"
	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
	"github.com/Metaculus/metaculus-sub005/internal/platform"
	"github.com/Metaculus/metaculus-sub005/internal/preview"
)

const validText = "Seasonal forecasts point to a wet spring"

type posts map[int64]keyfactor.Post

func (p posts) Post(id int64) (keyfactor.Post, bool) {
	post, ok := p[id]
	return post, ok
}

type suggesterFunc func(context.Context, keyfactor.Post, backend.CommentRecord) ([]keyfactor.Draft, error)

func (f suggesterFunc) Suggest(ctx context.Context, p keyfactor.Post, c backend.CommentRecord) ([]keyfactor.Draft, error) {
	return f(ctx, p, c)
}

func newService(t *testing.T, opts ...backend.Option) *backend.Service {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "backend.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	catalog := posts{
		1: {ID: 1, Title: "Will it rain?", Question: &keyfactor.Question{ID: 10, Type: keyfactor.QuestionBinary}},
	}
	clock := func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }
	return backend.New(store, catalog, append([]backend.Option{backend.WithClock(clock)}, opts...)...)
}

func driver(text string) *keyfactor.DriverDraft {
	return &keyfactor.DriverDraft{Text: text, Impact: keyfactor.Impact{Direction: keyfactor.DirectionIncrease}}
}

func drivers(n int) []keyfactor.Draft {
	out := make([]keyfactor.Draft, n)
	for i := range out {
		out[i] = driver(validText)
	}
	return out
}

func apiError(t *testing.T, err error) *platform.APIError {
	t.Helper()
	var apiErr *platform.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	return apiErr
}

func TestCreateCommentAssignsIDs(t *testing.T) {
	svc := newService(t)
	ctx := backend.WithUser(context.Background(), 5)

	comment, err := svc.CreateComment(ctx, platform.CreateCommentRequest{OnPost: 1, Text: "  reasoning  ", KeyFactors: drivers(2)})
	require.NoError(t, err)
	assert.NotZero(t, comment.ID)
	assert.Equal(t, "reasoning", comment.Text)
	assert.Equal(t, int64(5), comment.AuthorID)
	require.Len(t, comment.KeyFactors, 2)
	for _, kf := range comment.KeyFactors {
		assert.NotZero(t, kf.ID)
		assert.Equal(t, comment.ID, kf.CommentID)
	}

	listed, err := svc.ListKeyFactors(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestCreateCommentRejections(t *testing.T) {
	svc := newService(t)
	ctx := backend.WithUser(context.Background(), 5)

	_, err := svc.CreateComment(context.Background(), platform.CreateCommentRequest{OnPost: 1, Text: "x"})
	assert.Equal(t, http.StatusUnauthorized, apiError(t, err).Status)

	_, err = svc.CreateComment(ctx, platform.CreateCommentRequest{OnPost: 99, Text: "x"})
	assert.True(t, platform.IsNotFound(err))

	_, err = svc.CreateComment(ctx, platform.CreateCommentRequest{OnPost: 1, Text: " ", KeyFactors: []keyfactor.Draft{driver("short")}})
	apiErr := apiError(t, err)
	assert.True(t, apiErr.ValidationFailure())
	assert.NotEmpty(t, apiErr.FieldError("text"))

	_, err = svc.CreateComment(ctx, platform.CreateCommentRequest{OnPost: 1, Text: "x", KeyFactors: []keyfactor.Draft{&keyfactor.DriverDraft{Text: validText}}})
	assert.NotEmpty(t, apiError(t, err).FieldError(keyfactor.FieldImpact))

	_, err = svc.CreateComment(ctx, platform.CreateCommentRequest{OnPost: 1, Text: "x", KeyFactors: []keyfactor.Draft{keyfactor.NewDriverDraft()}})
	assert.NotEmpty(t, apiError(t, err).FieldError("key_factors"))

	listed, err := svc.ListKeyFactors(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestCreateCommentEnforcesPerCommentLimit(t *testing.T) {
	svc := newService(t)
	ctx := backend.WithUser(context.Background(), 5)

	_, err := svc.CreateComment(ctx, platform.CreateCommentRequest{OnPost: 1, Text: "x", KeyFactors: drivers(5)})
	apiErr := apiError(t, err)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.NotEmpty(t, apiErr.NonField)
	assert.Empty(t, apiErr.Fields)
}

func TestPerQuestionLimitSpansComments(t *testing.T) {
	svc := newService(t)
	ctx := backend.WithUser(context.Background(), 5)

	_, err := svc.CreateComment(ctx, platform.CreateCommentRequest{OnPost: 1, Text: "first", KeyFactors: drivers(4)})
	require.NoError(t, err)
	second, err := svc.CreateComment(ctx, platform.CreateCommentRequest{OnPost: 1, Text: "second", KeyFactors: drivers(2)})
	require.NoError(t, err)

	_, err = svc.AddKeyFactorsToComment(ctx, second.ID, drivers(1))
	assert.Equal(t, http.StatusBadRequest, apiError(t, err).Status)

	other := backend.WithUser(context.Background(), 6)
	_, err = svc.CreateComment(other, platform.CreateCommentRequest{OnPost: 1, Text: "other", KeyFactors: drivers(1)})
	assert.NoError(t, err)
}

func TestAddKeyFactorsToComment(t *testing.T) {
	svc := newService(t)
	ctx := backend.WithUser(context.Background(), 5)
	comment, err := svc.CreateComment(ctx, platform.CreateCommentRequest{OnPost: 1, Text: "x", KeyFactors: drivers(1)})
	require.NoError(t, err)

	updated, err := svc.AddKeyFactorsToComment(ctx, comment.ID, drivers(2))
	require.NoError(t, err)
	assert.Len(t, updated.KeyFactors, 3)

	_, err = svc.AddKeyFactorsToComment(ctx, comment.ID, drivers(2))
	assert.Equal(t, http.StatusBadRequest, apiError(t, err).Status, "comment scope allows only one more")

	_, err = svc.AddKeyFactorsToComment(ctx, comment.ID, nil)
	assert.Equal(t, http.StatusBadRequest, apiError(t, err).Status)

	_, err = svc.AddKeyFactorsToComment(backend.WithUser(context.Background(), 6), comment.ID, drivers(1))
	assert.Equal(t, http.StatusForbidden, apiError(t, err).Status)

	_, err = svc.AddKeyFactorsToComment(ctx, 12345, drivers(1))
	assert.True(t, platform.IsNotFound(err))
}

func TestQuestionLinksDoNotConsumeQuota(t *testing.T) {
	svc := newService(t)
	ctx := backend.WithUser(context.Background(), 5)
	batch := append(drivers(4), &keyfactor.QuestionLinkDraft{TargetQuestionID: 77, Direction: keyfactor.DirectionIncrease, Strength: keyfactor.StrengthMedium})

	comment, err := svc.CreateComment(ctx, platform.CreateCommentRequest{OnPost: 1, Text: "x", KeyFactors: batch})
	require.NoError(t, err)
	assert.Len(t, comment.KeyFactors, 5)
}

func TestVoteKeyFactor(t *testing.T) {
	svc := newService(t)
	author := backend.WithUser(context.Background(), 5)
	comment, err := svc.CreateComment(author, platform.CreateCommentRequest{OnPost: 1, Text: "x", KeyFactors: drivers(1)})
	require.NoError(t, err)
	id := comment.KeyFactors[0].ID

	agg, err := svc.VoteKeyFactor(context.Background(), platform.VoteRequest{ID: id, Vote: 5, User: 7, VoteType: keyfactor.VoteStrength})
	require.NoError(t, err)
	assert.Equal(t, keyfactor.VoteAggregate{Score: 5, Count: 1, UserVote: 5}, agg)

	agg, err = svc.VoteKeyFactor(author, platform.VoteRequest{ID: id, Vote: 2, VoteType: keyfactor.VoteStrength})
	require.NoError(t, err)
	assert.Equal(t, keyfactor.VoteAggregate{Score: 7, Count: 2, UserVote: 2}, agg)

	_, err = svc.VoteKeyFactor(author, platform.VoteRequest{ID: id, Vote: 3, VoteType: keyfactor.VoteStrength})
	assert.NotEmpty(t, apiError(t, err).FieldError("vote"))

	_, err = svc.VoteKeyFactor(author, platform.VoteRequest{ID: 999, Vote: 1, VoteType: keyfactor.VoteDirection})
	assert.True(t, platform.IsNotFound(err))

	_, err = svc.VoteKeyFactor(context.Background(), platform.VoteRequest{ID: id, Vote: 1, VoteType: keyfactor.VoteDirection})
	assert.Equal(t, http.StatusUnauthorized, apiError(t, err).Status)
}

func TestSuggestionsAndPreview(t *testing.T) {
	var seen backend.CommentRecord
	svc := newService(t,
		backend.WithSuggester(suggesterFunc(func(_ context.Context, p keyfactor.Post, c backend.CommentRecord) ([]keyfactor.Draft, error) {
			seen = c
			return drivers(1), nil
		})),
		backend.WithPreviewFetcher(preview.FetcherFunc(func(_ context.Context, rawURL string) (*keyfactor.NewsArticle, error) {
			return &keyfactor.NewsArticle{URL: rawURL, Title: "Headline"}, nil
		})),
	)
	ctx := backend.WithUser(context.Background(), 5)
	comment, err := svc.CreateComment(ctx, platform.CreateCommentRequest{OnPost: 1, Text: "reasoning"})
	require.NoError(t, err)

	suggested, err := svc.GetSuggestedKeyFactors(ctx, comment.ID)
	require.NoError(t, err)
	assert.Len(t, suggested, 1)
	assert.Equal(t, "reasoning", seen.Text)

	_, err = svc.GetSuggestedKeyFactors(ctx, 404)
	assert.True(t, platform.IsNotFound(err))

	article, err := svc.FetchNewsPreview(ctx, "https://example.com/story")
	require.NoError(t, err)
	assert.Equal(t, "Headline", article.Title)

	_, err = svc.FetchNewsPreview(ctx, "not a url")
	assert.NotEmpty(t, apiError(t, err).FieldError("url"))
}

func TestGetPost(t *testing.T) {
	svc := newService(t)
	post, err := svc.GetPost(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Will it rain?", post.Title)

	_, err = svc.GetPost(context.Background(), 2)
	assert.True(t, platform.IsNotFound(err))
}
