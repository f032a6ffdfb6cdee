package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Metaculus/metaculus-sub005/internal/backend"
	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
	"github.com/Metaculus/metaculus-sub005/internal/platform"
)

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// errBadRequest marks request decoding failures.
type errBadRequest struct {
	field string
	msg   string
}

func (e errBadRequest) Error() string { return e.msg }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	s.handle(mux, "POST /api/comments/{$}", s.createComment)
	s.handle(mux, "POST /api/comments/{id}/key-factors/{$}", s.addKeyFactors)
	s.handle(mux, "GET /api/comments/{id}/suggested-key-factors/{$}", s.suggestedKeyFactors)
	s.handle(mux, "GET /api/news-preview/{$}", s.newsPreview)
	s.handle(mux, "POST /api/key-factors/{id}/vote/{$}", s.vote)
	s.handle(mux, "GET /api/posts/{id}/{$}", s.getPost)
	s.handle(mux, "GET /api/posts/{id}/key-factors/{$}", s.listKeyFactors)
	return mux
}

// handle wraps h with tracing, acting-user resolution and error rendering.
func (s *Server) handle(mux *http.ServeMux, pattern string, h handlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), "apiserver "+pattern,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()
		if user := s.actingUser(r); user != 0 {
			ctx = backend.WithUser(ctx, user)
			span.SetAttributes(attribute.Int64("user.id", user))
		}
		err := h(w, r.WithContext(ctx))
		if err == nil {
			return
		}
		status := s.writeError(w, err)
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	})
}

func (s *Server) actingUser(r *http.Request) int64 {
	if raw := strings.TrimSpace(r.Header.Get(platform.UserHeader)); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return s.settings.DefaultUser
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		UptimeSeconds: s.uptimeSeconds(),
	})
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) error {
	var payload platform.CommentPayload
	if err := s.decode(w, r, &payload); err != nil {
		return err
	}
	comment, err := s.backend.CreateComment(r.Context(), platform.CreateCommentRequest{
		OnPost:     payload.OnPost,
		Text:       payload.Text,
		KeyFactors: keyfactor.Unwrap(payload.KeyFactors),
		IsPrivate:  payload.IsPrivate,
		AuthorID:   backend.UserFrom(r.Context()),
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, comment)
	return nil
}

func (s *Server) addKeyFactors(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	var payload platform.KeyFactorsPayload
	if err := s.decode(w, r, &payload); err != nil {
		return err
	}
	comment, err := s.backend.AddKeyFactorsToComment(r.Context(), id, keyfactor.Unwrap(payload.KeyFactors))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, comment)
	return nil
}

func (s *Server) suggestedKeyFactors(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	drafts, err := s.backend.GetSuggestedKeyFactors(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, keyfactor.Wrap(drafts))
	return nil
}

func (s *Server) newsPreview(w http.ResponseWriter, r *http.Request) error {
	article, err := s.backend.FetchNewsPreview(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		return err
	}
	if article == nil {
		return &platform.APIError{Status: http.StatusNotFound, NonField: []string{"No preview available."}}
	}
	writeJSON(w, http.StatusOK, article)
	return nil
}

func (s *Server) vote(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	var payload platform.VotePayload
	if err := s.decode(w, r, &payload); err != nil {
		return err
	}
	agg, err := s.backend.VoteKeyFactor(r.Context(), platform.VoteRequest{
		ID:       id,
		Vote:     payload.Vote,
		User:     backend.UserFrom(r.Context()),
		VoteType: payload.VoteType,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, agg)
	return nil
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	post, err := s.backend.GetPost(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, post)
	return nil
}

func (s *Server) listKeyFactors(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	factors, err := s.backend.ListKeyFactors(r.Context(), id)
	if err != nil {
		return err
	}
	if factors == nil {
		factors = []keyfactor.KeyFactor{}
	}
	writeJSON(w, http.StatusOK, factors)
	return nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return errBadRequest{msg: "empty body"}
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &platform.APIError{Status: http.StatusRequestEntityTooLarge, NonField: []string{"Payload exceeds limit."}}
		}
		return errBadRequest{msg: "unable to read body"}
	}
	if err := json.Unmarshal(body, out); err != nil {
		if errors.Is(err, keyfactor.ErrDiscriminator) {
			return errBadRequest{field: "key_factors", msg: err.Error()}
		}
		return errBadRequest{msg: "invalid JSON"}
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &platform.APIError{Status: http.StatusNotFound, NonField: []string{"Not found."}}
	}
	return id, nil
}

// writeError renders err in the platform error shape and returns the status.
func (s *Server) writeError(w http.ResponseWriter, err error) int {
	var apiErr *platform.APIError
	var badReq errBadRequest
	switch {
	case errors.As(err, &apiErr):
		writeJSON(w, apiErr.Status, apiErr.Body())
		return apiErr.Status
	case errors.As(err, &badReq):
		body := platform.ErrorBody{NonFieldErrors: []string{badReq.msg}}
		if badReq.field != "" {
			body = platform.ErrorBody{Errors: map[string][]string{badReq.field: {badReq.msg}}}
		}
		writeJSON(w, http.StatusBadRequest, body)
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, platform.ErrorBody{NonFieldErrors: []string{"Request cancelled."}})
		return http.StatusServiceUnavailable
	default:
		s.logger.Error("handler failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, platform.ErrorBody{NonFieldErrors: []string{"Internal server error."}})
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
