package backend

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/moasq/datalink/internal/logging"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Method string
	Path   string
	Status int
	// Detail is the server's own explanation, taken from "detail" or "error".
	Detail string
	Body   string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("API %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("API %s %s returned %d", e.Method, e.Path, e.Status)
}

// UserDetail is the message worth showing to a user, if the server sent one.
func (e *APIError) UserDetail() string { return e.Detail }

func newAPIError(method, path string, status int, body []byte) *APIError {
	return &APIError{
		Method: method,
		Path:   path,
		Status: status,
		Detail: extractDetail(body),
		Body:   logging.Truncate(string(body), 512),
	}
}

// extractDetail reads {"detail": ...} or {"error": ...}. A structured detail
// (validation errors) is returned as compact JSON.
func extractDetail(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return ""
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, raw := range []json.RawMessage{payload.Detail, payload.Error} {
		if msg := rawText(raw); msg != "" {
			return msg
		}
	}
	return ""
}

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return ""
	}
	return buf.String()
}
