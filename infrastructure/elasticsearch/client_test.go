package elasticsearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/retry"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{input: "http://es:9200", expected: "http://es:9200"},
		{input: "https://es:9200", expected: "https://es:9200"},
		{input: "es:9200", expected: "http://es:9200"},
		{input: "", expected: "http://localhost:9200"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizeURL(tt.input), tt.input)
	}
}

func TestNewClient_RetriesUntilClusterAnswers(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), Config{
		URL:        srv.URL,
		MaxRetries: 1,
		RetryConfig: &retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			IsRetryable:  func(error) bool { return true },
		},
	}, logger.NewNop())

	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.GreaterOrEqual(t, hits.Load(), int32(2))
}
