package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewHTTPClient(srv.URL, opts...)
	require.NoError(t, err)
	return client
}

func TestCreateCommentSendsEnvelopes(t *testing.T) {
	var got CommentPayload
	var user string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/comments/" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user = r.Header.Get(UserHeader)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Comment{ID: 12, PostID: got.OnPost, Text: got.Text})
	}, WithUser(7))

	driver := &keyfactor.DriverDraft{Text: "Central bank signals two more cuts", Impact: keyfactor.ImpactOf(keyfactor.ImpactIncrease)}
	comment, err := client.CreateComment(context.Background(), CreateCommentRequest{
		OnPost:     3,
		Text:       "my reasoning",
		KeyFactors: []keyfactor.Draft{driver},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), comment.ID)
	assert.Equal(t, "7", user)
	require.Len(t, got.KeyFactors, 1)
	assert.Equal(t, keyfactor.KindDriver, got.KeyFactors[0].Draft.Kind())
	assert.Equal(t, driver.Text, keyfactor.Summary(got.KeyFactors[0].Draft))
}

func TestStructuredErrorsDecode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ErrorBody{
			Errors:         map[string][]string{"text": {"too short"}},
			NonFieldErrors: []string{"limit reached"},
		})
	})
	_, err := client.AddKeyFactorsToComment(context.Background(), 5, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "too short", apiErr.FieldError("text"))
	assert.Equal(t, []string{"limit reached"}, apiErr.NonField)
	assert.True(t, apiErr.ValidationFailure())
	assert.Contains(t, apiErr.Error(), "text: too short")
}

func TestServerErrorsAreNotValidationFailures(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := client.GetPost(context.Background(), 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.False(t, apiErr.ValidationFailure())
}

func TestNewsPreviewNotFoundIsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") != "https://example.com/a" {
			t.Fatalf("missing url query: %s", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusNotFound)
	})
	article, err := client.FetchNewsPreview(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Nil(t, article)
}

func TestSuggestionsAndKeyFactorsDecode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/comments/4/suggested-key-factors/":
			_, _ = w.Write([]byte(`[{"driver": {"text": "Supply chains recover faster", "impact_direction": 1, "certainty": null}},
				{"news": {"url": "https://example.com", "impact_direction": -1, "certainty": null}}]`))
		case "/api/posts/2/key-factors/":
			_, _ = w.Write([]byte(`[{"id": 9, "comment_id": 4, "post_id": 2, "author_id": 1, "driver": {"text": "x", "impact_direction": 1, "certainty": null}, "vote": {"score": 2, "count": 1, "user_vote": 0}}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	drafts, err := client.GetSuggestedKeyFactors(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, keyfactor.KindNews, drafts[1].Kind())

	factors, err := client.ListKeyFactors(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, factors, 1)
	assert.Equal(t, int64(9), factors[0].ID)
	assert.Equal(t, float64(2), factors[0].Vote.Score)
}

func TestUnrecognizedSuggestionsAreSkipped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"driver": {"text": "Supply chains recover faster", "impact_direction": 1, "certainty": null}},
			{"unknown_kind": {"x": 1}},
			{"base_rate": {"type": "frequency", "reference_class": "Droughts in the last century", "unit": "years", "source": "example.com", "rate_numerator": 3, "rate_denominator": 10}}]`))
	})
	drafts, err := client.GetSuggestedKeyFactors(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, keyfactor.KindDriver, drafts[0].Kind())
	assert.Equal(t, keyfactor.KindBaseRate, drafts[1].Kind())
}

func TestMalformedSuggestionFailsTheLoad(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"driver": {"text": 42}}]`))
	})
	_, err := client.GetSuggestedKeyFactors(context.Background(), 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode entry 0")
}

func TestCancelledContextStopsBeforeSending(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.VoteKeyFactor(ctx, VoteRequest{ID: 1, Vote: 1, VoteType: keyfactor.VoteDirection})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, called)
}

func TestNewHTTPClientRejectsBadScheme(t *testing.T) {
	_, err := NewHTTPClient("ftp://example.com")
	assert.Error(t, err)
}
