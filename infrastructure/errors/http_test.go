package errors_test

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraerrors "github.com/jonesrussell/north-cloud/timeline/infrastructure/errors"
)

func response(code int, body string) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body))}
}

func TestFromResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		code      int
		body      string
		wantNil   bool
		message   string
		retryable bool
	}{
		{name: "ok", code: http.StatusOK, wantNil: true},
		{name: "accepted", code: http.StatusAccepted, wantNil: true},
		{name: "json error", code: http.StatusConflict, body: `{"error":"batch already running"}`, message: "batch already running"},
		{name: "json message", code: http.StatusBadRequest, body: `{"message":"bad date"}`, message: "bad date"},
		{name: "plain body", code: http.StatusBadGateway, body: "upstream down\n", message: "upstream down", retryable: true},
		{name: "rate limited", code: http.StatusTooManyRequests, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := infraerrors.FromResponse(response(tt.code, tt.body))
			if tt.wantNil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)

			wrapped := fmt.Errorf("call failed: %w", err)
			code, ok := infraerrors.StatusCode(wrapped)
			require.True(t, ok)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.retryable, infraerrors.Retryable(wrapped))
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
			assert.Contains(t, err.Error(), fmt.Sprint(tt.code))
		})
	}
}

func TestStatusCode_NotHTTPError(t *testing.T) {
	t.Parallel()

	_, ok := infraerrors.StatusCode(io.EOF)
	assert.False(t, ok)
	assert.False(t, infraerrors.Retryable(io.EOF))
}
