// Package preview resolves article metadata for pasted news links.
package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

// Fetcher resolves article metadata for a URL. A nil article with a nil
// error means nothing usable was found.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*keyfactor.NewsArticle, error)
}

// FetcherFunc adapts a function into a Fetcher, for example
// platform.Client.FetchNewsPreview.
type FetcherFunc func(ctx context.Context, rawURL string) (*keyfactor.NewsArticle, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (*keyfactor.NewsArticle, error) {
	return f(ctx, rawURL)
}

const (
	maxPageBytes = 2 << 20
	userAgent    = "Mozilla/5.0 (compatible; keyfactors/1.0)"
)

// HTMLFetcher downloads a page and reads its OpenGraph tags.
type HTMLFetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTMLFetcher returns a fetcher with a bounded request timeout.
func NewHTMLFetcher(timeout time.Duration) *HTMLFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTMLFetcher{Client: http.DefaultClient, Timeout: timeout}
}

// Fetch implements Fetcher.
func (f *HTMLFetcher) Fetch(ctx context.Context, rawURL string) (*keyfactor.NewsArticle, error) {
	normalized, ok := keyfactor.NormalizeURL(rawURL)
	if !ok {
		return nil, fmt.Errorf("preview: invalid url %q", rawURL)
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalized, nil)
	if err != nil {
		return nil, fmt.Errorf("preview: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("preview: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("preview: HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, nil
	}
	article, err := ParseArticle(io.LimitReader(resp.Body, maxPageBytes), normalized)
	if err != nil {
		return nil, err
	}
	return article, nil
}

// ParseArticle extracts OpenGraph metadata from an HTML document. It falls
// back to <title> and the page host when tags are missing, and returns nil
// when no title can be found.
func ParseArticle(r io.Reader, pageURL string) (*keyfactor.NewsArticle, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("preview: parse html: %w", err)
	}
	meta := map[string]string{}
	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				key := getAttr(n, "property")
				if key == "" {
					key = getAttr(n, "name")
				}
				key = strings.ToLower(strings.TrimSpace(key))
				if _, seen := meta[key]; key != "" && !seen {
					meta[key] = strings.TrimSpace(getAttr(n, "content"))
				}
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "body":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	article := &keyfactor.NewsArticle{
		URL:    pageURL,
		Title:  firstNonEmpty(meta["og:title"], meta["twitter:title"], title),
		ImgURL: resolve(pageURL, firstNonEmpty(meta["og:image"], meta["twitter:image"])),
		Source: firstNonEmpty(meta["og:site_name"], hostOf(pageURL)),
	}
	if canonical := meta["og:url"]; canonical != "" {
		if normalized, ok := keyfactor.NormalizeURL(canonical); ok {
			article.URL = normalized
		}
	}
	if published := firstNonEmpty(meta["article:published_time"], meta["og:published_time"], meta["date"]); published != "" {
		article.PublishedAt = parseTime(published)
	}
	if article.Title == "" {
		return nil, nil
	}
	return article, nil
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func resolve(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(value string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
