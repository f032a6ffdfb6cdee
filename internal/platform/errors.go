package platform

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrNoClient is returned by callers that were built without a Client.
var ErrNoClient = errors.New("platform: no client configured")

// ErrorBody is the structured error payload returned on 4xx responses.
type ErrorBody struct {
	Errors         map[string][]string `json:"errors,omitempty"`
	NonFieldErrors []string            `json:"non_field_errors,omitempty"`
}

// APIError is a structured error returned by the platform.
type APIError struct {
	Status   int
	Fields   map[string][]string
	NonField []string
}

func (e *APIError) Error() string {
	parts := make([]string, 0, len(e.Fields)+len(e.NonField))
	parts = append(parts, e.NonField...)
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("platform: status %d", e.Status)
	}
	return fmt.Sprintf("platform: status %d: %s", e.Status, strings.Join(parts, ", "))
}

// ValidationFailure reports whether the server rejected the content itself.
func (e *APIError) ValidationFailure() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusNotFound &&
		(len(e.Fields) > 0 || len(e.NonField) > 0)
}

// Body converts the error back into its wire shape.
func (e *APIError) Body() ErrorBody {
	return ErrorBody{Errors: e.Fields, NonFieldErrors: e.NonField}
}

// FieldError returns the first message for field.
func (e *APIError) FieldError(field string) string {
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// IsNotFound reports whether err is a 404 from the platform.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var payload ErrorBody
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Fields = payload.Errors
		apiErr.NonField = payload.NonFieldErrors
	}
	if len(apiErr.Fields) == 0 && len(apiErr.NonField) == 0 {
		if text := strings.TrimSpace(string(body)); text != "" && status < 500 {
			apiErr.NonField = []string{text}
		}
	}
	return apiErr
}
