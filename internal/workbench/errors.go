package workbench

import (
	"errors"
	"sort"
	"strings"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
	"github.com/Metaculus/metaculus-sub005/internal/platform"
)

var (
	// ErrBatchFull is returned when another draft would exceed the allowance.
	ErrBatchFull = errors.New("workbench: no room for another draft")
	// ErrCommentaryRequired is returned when a new comment has no text.
	ErrCommentaryRequired = errors.New("workbench: comment text is required")
	// ErrInvalidDrafts is returned when a draft in the batch does not validate.
	ErrInvalidDrafts = errors.New("workbench: some key factors are invalid")
	// ErrNothingToSubmit is returned when the batch is empty.
	ErrNothingToSubmit = errors.New("workbench: nothing to submit")
	// ErrBusy is returned by the accept fast path while a submission is pending.
	ErrBusy = errors.New("workbench: a submission is already in progress")
	// ErrDraftIndex is returned for manual draft positions that do not exist.
	ErrDraftIndex = errors.New("workbench: draft index out of range")
)

// FieldCommentary is the error key for the comment text.
const FieldCommentary = "comment_text"

// SubmissionError is the single error channel for a failed submission,
// whether it failed locally, at the server or in transit.
type SubmissionError struct {
	Fields   map[string][]string
	NonField []string
	Cause    error
}

func (e *SubmissionError) Error() string {
	msgs := e.Messages()
	if len(msgs) == 0 && e.Cause != nil {
		return "workbench: submit: " + e.Cause.Error()
	}
	return "workbench: submit: " + strings.Join(msgs, "; ")
}

func (e *SubmissionError) Unwrap() error {
	return e.Cause
}

// Messages flattens the error for a banner: non-field messages first, then
// field messages ordered by field name.
func (e *SubmissionError) Messages() []string {
	out := append([]string(nil), e.NonField...)
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, e.Fields[k]...)
	}
	return out
}

// Field returns the first message for field.
func (e *SubmissionError) Field(field string) string {
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// ValidationFailure reports whether the content was rejected, locally or by
// the server, as opposed to a transport failure.
func (e *SubmissionError) ValidationFailure() bool {
	if errors.Is(e.Cause, ErrInvalidDrafts) {
		return true
	}
	var apiErr *platform.APIError
	return errors.As(e.Cause, &apiErr) && apiErr.ValidationFailure()
}

func localError(cause error, fields keyfactor.FieldErrors, nonField ...string) *SubmissionError {
	e := &SubmissionError{Cause: cause, NonField: nonField}
	if len(fields) > 0 {
		e.Fields = map[string][]string{}
		for _, k := range fields.Fields() {
			e.Fields[k] = []string{fields[k]}
		}
	}
	return e
}

func convertError(err error) *SubmissionError {
	var sub *SubmissionError
	if errors.As(err, &sub) {
		return sub
	}
	var apiErr *platform.APIError
	if errors.As(err, &apiErr) {
		e := &SubmissionError{Fields: apiErr.Fields, NonField: apiErr.NonField, Cause: err}
		if len(e.Fields) == 0 && len(e.NonField) == 0 {
			e.NonField = []string{"The server could not save your key factors. Please try again."}
		}
		return e
	}
	return &SubmissionError{NonField: []string{"Could not reach the server: " + err.Error()}, Cause: err}
}
