// Package errors turns non-2xx HTTP responses into typed errors.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBodyBytes bounds how much of an error body is read.
const maxBodyBytes = 4096

// HTTPError is a non-2xx response from a peer service.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// FromResponse returns nil for 2xx responses. Otherwise it reads the body and
// returns an *HTTPError carrying the "error" or "message" field of a JSON
// body, or the trimmed raw body.
func FromResponse(resp *http.Response) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", err)}
	}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: payload.Error}
		}
		if payload.Message != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: payload.Message}
		}
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// StatusCode extracts the status of a wrapped *HTTPError.
func StatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}

// Retryable reports whether err is a 429 or 5xx response.
func Retryable(err error) bool {
	code, ok := StatusCode(err)
	return ok && (code == http.StatusTooManyRequests || code >= http.StatusInternalServerError)
}
