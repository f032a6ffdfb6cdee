package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 15 * time.Second
	// DefaultRate is the steady request rate allowed against the API.
	DefaultRate = rate.Limit(10)
	// DefaultBurst is the request burst allowed against the API.
	DefaultBurst = 5

	maxResponseBytes = 4 << 20
	tracerName       = "github.com/Metaculus/metaculus-sub005/internal/platform"
)

// HTTPClient implements Client over the platform's JSON API.
type HTTPClient struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer
	logger  *zap.Logger
	userID  int64
}

var _ Client = (*HTTPClient)(nil)

// ClientOption customizes an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient swaps the underlying transport client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.http = c
		}
	}
}

// WithRateLimit overrides the client-side limiter.
func WithRateLimit(r rate.Limit, burst int) ClientOption {
	return func(h *HTTPClient) {
		h.limiter = rate.NewLimiter(r, burst)
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) ClientOption {
	return func(h *HTTPClient) {
		if t != nil {
			h.tracer = t
		}
	}
}

// WithClientLogger attaches a logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(h *HTTPClient) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithUser sets the acting user sent with every request.
func WithUser(id int64) ClientOption {
	return func(h *HTTPClient) {
		h.userID = id
	}
}

// NewHTTPClient returns a client rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("platform: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("platform: base url %q must be http or https", baseURL)
	}
	h := &HTTPClient{
		base:    base,
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(DefaultRate, DefaultBurst),
		tracer:  otel.Tracer(tracerName),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// CreateComment posts a new comment carrying drafts as key factors.
func (h *HTTPClient) CreateComment(ctx context.Context, req CreateCommentRequest) (Comment, error) {
	payload := CommentPayload{
		OnPost:     req.OnPost,
		Text:       req.Text,
		IsPrivate:  req.IsPrivate,
		KeyFactors: keyfactor.Wrap(req.KeyFactors),
	}
	ctx = withUserOverride(ctx, req.AuthorID)
	var out Comment
	err := h.do(ctx, "create_comment", http.MethodPost, "api/comments/", nil, payload, &out)
	return out, err
}

// AddKeyFactorsToComment appends drafts to an existing comment.
func (h *HTTPClient) AddKeyFactorsToComment(ctx context.Context, commentID int64, drafts []keyfactor.Draft) (Comment, error) {
	path := fmt.Sprintf("api/comments/%d/key-factors/", commentID)
	var out Comment
	err := h.do(ctx, "add_key_factors", http.MethodPost, path, nil, KeyFactorsPayload{KeyFactors: keyfactor.Wrap(drafts)}, &out)
	return out, err
}

// GetSuggestedKeyFactors loads machine suggestions for a comment.
func (h *HTTPClient) GetSuggestedKeyFactors(ctx context.Context, commentID int64) ([]keyfactor.Draft, error) {
	path := fmt.Sprintf("api/comments/%d/suggested-key-factors/", commentID)
	var raw []json.RawMessage
	if err := h.do(ctx, "suggested_key_factors", http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, err
	}
	drafts := make([]keyfactor.Draft, 0, len(raw))
	for i, entry := range raw {
		d, err := keyfactor.UnmarshalDraft(entry)
		if errors.Is(err, keyfactor.ErrDiscriminator) {
			h.logger.Debug("skipping unrecognized suggestion", zap.Int64("comment", commentID), zap.Int("index", i))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("platform: suggested_key_factors: decode entry %d: %w", i, err)
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// FetchNewsPreview asks the platform for article metadata. A nil article
// with a nil error means the platform found nothing.
func (h *HTTPClient) FetchNewsPreview(ctx context.Context, rawURL string) (*keyfactor.NewsArticle, error) {
	var out *keyfactor.NewsArticle
	query := url.Values{"url": []string{rawURL}}
	if err := h.do(ctx, "news_preview", http.MethodGet, "api/news-preview/", query, nil, &out); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// VoteKeyFactor casts or clears a vote and returns the new aggregate.
func (h *HTTPClient) VoteKeyFactor(ctx context.Context, req VoteRequest) (keyfactor.VoteAggregate, error) {
	path := fmt.Sprintf("api/key-factors/%d/vote/", req.ID)
	ctx = withUserOverride(ctx, req.User)
	var out keyfactor.VoteAggregate
	err := h.do(ctx, "vote_key_factor", http.MethodPost, path, nil, VotePayload{Vote: req.Vote, VoteType: req.VoteType}, &out)
	return out, err
}

// GetPost loads a post descriptor.
func (h *HTTPClient) GetPost(ctx context.Context, postID int64) (keyfactor.Post, error) {
	var out keyfactor.Post
	err := h.do(ctx, "get_post", http.MethodGet, fmt.Sprintf("api/posts/%d/", postID), nil, nil, &out)
	return out, err
}

// ListKeyFactors loads every persisted key factor on a post.
func (h *HTTPClient) ListKeyFactors(ctx context.Context, postID int64) ([]keyfactor.KeyFactor, error) {
	var out []keyfactor.KeyFactor
	err := h.do(ctx, "list_key_factors", http.MethodGet, fmt.Sprintf("api/posts/%d/key-factors/", postID), nil, nil, &out)
	return out, err
}

func (h *HTTPClient) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target := h.base.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}
	ctx, span := h.tracer.Start(ctx, "platform."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", target.String()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("platform: %s: %w", op, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("platform: %s: encode: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("platform: %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	if user := h.actingUser(ctx); user != 0 {
		req.Header.Set(UserHeader, strconv.FormatInt(user, 10))
	}

	started := time.Now()
	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("platform: %s: %w", op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("platform: %s: read body: %w", op, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	h.logger.Debug("platform request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("platform: %s: decode: %w", op, err)
	}
	return nil
}

type userKey struct{}

func withUserOverride(ctx context.Context, user int64) context.Context {
	if user == 0 {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userKey{}, user)
}

func (h *HTTPClient) actingUser(ctx context.Context) int64 {
	if user, ok := ctx.Value(userKey{}).(int64); ok && user != 0 {
		return user
	}
	return h.userID
}
