package preview

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

const articleHTML = `<!doctype html>
<html><head>
<title>Fallback title</title>
<meta property="og:title" content="Ceasefire talks resume in Geneva">
<meta property="og:image" content="/img/lead.jpg">
<meta property="og:site_name" content="Example News">
<meta property="article:published_time" content="2026-02-11T08:30:00Z">
</head><body><p>body text</p></body></html>`

func TestParseArticleReadsOpenGraph(t *testing.T) {
	article, err := ParseArticle(strings.NewReader(articleHTML), "https://news.example.com/world/1")
	require.NoError(t, err)
	require.NotNil(t, article)
	assert.Equal(t, "Ceasefire talks resume in Geneva", article.Title)
	assert.Equal(t, "https://news.example.com/img/lead.jpg", article.ImgURL)
	assert.Equal(t, "Example News", article.Source)
	assert.Equal(t, time.Date(2026, 2, 11, 8, 30, 0, 0, time.UTC), article.PublishedAt)
}

func TestParseArticleFallsBackToTitleAndHost(t *testing.T) {
	article, err := ParseArticle(strings.NewReader(`<html><head><title> Plain page </title></head></html>`), "https://www.example.org/x")
	require.NoError(t, err)
	require.NotNil(t, article)
	assert.Equal(t, "Plain page", article.Title)
	assert.Equal(t, "example.org", article.Source)

	article, err = ParseArticle(strings.NewReader(`<html><body>nothing</body></html>`), "https://example.org")
	require.NoError(t, err)
	assert.Nil(t, article)
}

func TestHTMLFetcherAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	// httptest hosts have no TLD, so exercise the parsing path through the
	// test client directly.
	f := &HTMLFetcher{Client: srv.Client()}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := f.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	article, err := ParseArticle(resp.Body, "https://news.example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "Example News", article.Source)

	_, err = f.Fetch(context.Background(), "not a url")
	assert.Error(t, err)
}

type recordingFetcher struct {
	mu      sync.Mutex
	calls   []string
	block   chan struct{}
	aborted int
}

func (r *recordingFetcher) Fetch(ctx context.Context, rawURL string) (*keyfactor.NewsArticle, error) {
	r.mu.Lock()
	r.calls = append(r.calls, rawURL)
	block := r.block
	r.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			r.mu.Lock()
			r.aborted++
			r.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	if strings.Contains(rawURL, "broken") {
		return nil, errors.New("upstream 500")
	}
	return &keyfactor.NewsArticle{URL: rawURL, Title: "title for " + rawURL}, nil
}

func (r *recordingFetcher) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestPreviewerDebouncesRapidEdits(t *testing.T) {
	defer goleak.VerifyNone(t)
	fetcher := &recordingFetcher{}
	p := NewPreviewer(fetcher, WithDelay(50*time.Millisecond))
	defer p.Close()

	p.Request("https://example.com/a")
	p.Request("https://example.com/ab")
	p.Request("https://example.com/abc")

	waitFor(t, func() bool {
		s := p.State()
		return !s.Loading && s.Article != nil
	})
	assert.Equal(t, []string{"https://example.com/abc"}, fetcher.Calls())
	assert.Equal(t, "title for https://example.com/abc", p.State().Article.Title)
}

func TestPreviewerAbortsSupersededFetch(t *testing.T) {
	defer goleak.VerifyNone(t)
	fetcher := &recordingFetcher{block: make(chan struct{})}
	var mu sync.Mutex
	var published []State
	p := NewPreviewer(fetcher, WithDelay(0), WithUpdateHandler(func(s State) {
		mu.Lock()
		published = append(published, s)
		mu.Unlock()
	}))
	defer p.Close()

	p.Request("https://example.com/first")
	waitFor(t, func() bool { return len(fetcher.Calls()) == 1 })

	fetcher.mu.Lock()
	fetcher.block = nil
	fetcher.mu.Unlock()
	p.Request("https://example.com/second")

	waitFor(t, func() bool {
		s := p.State()
		return s.Article != nil && s.URL == "https://example.com/second"
	})
	waitFor(t, func() bool {
		fetcher.mu.Lock()
		defer fetcher.mu.Unlock()
		return fetcher.aborted == 1
	})

	mu.Lock()
	defer mu.Unlock()
	for _, s := range published {
		assert.NoError(t, s.Err, "a cancelled fetch is not an error")
		if s.Article != nil {
			assert.Equal(t, "https://example.com/second", s.Article.URL)
		}
	}
}

func TestPreviewerClearsOnInvalidURL(t *testing.T) {
	defer goleak.VerifyNone(t)
	fetcher := &recordingFetcher{}
	p := NewPreviewer(fetcher, WithDelay(time.Hour))
	p.Request("https://example.com/pending")
	p.Request("nope")
	s := p.State()
	assert.False(t, s.Loading)
	assert.Nil(t, s.Article)
	p.Close()
	assert.Empty(t, fetcher.Calls())
}

func TestPreviewerStoresFetchErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPreviewer(&recordingFetcher{}, WithDelay(0))
	defer p.Close()
	p.Request("https://example.com/broken")
	waitFor(t, func() bool { return p.State().Err != nil })
	assert.Nil(t, p.State().Article)
	assert.False(t, p.State().Loading)
}
