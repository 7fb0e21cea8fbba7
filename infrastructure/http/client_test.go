package http_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infrahttp "github.com/jonesrussell/north-cloud/timeline/infrastructure/http"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         infrahttp.ClientConfig
		timeout     time.Duration
		idlePerHost int
	}{
		{name: "defaults", timeout: infrahttp.DefaultTimeout, idlePerHost: infrahttp.DefaultMaxIdleConnsPerHost},
		{
			name:        "explicit",
			cfg:         infrahttp.ClientConfig{Timeout: 5 * time.Second, MaxIdleConnsPerHost: 2},
			timeout:     5 * time.Second,
			idlePerHost: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := infrahttp.NewClient(tt.cfg)
			assert.Equal(t, tt.timeout, c.Timeout)
			transport, ok := c.Transport.(*http.Transport)
			require.True(t, ok)
			assert.Equal(t, tt.idlePerHost, transport.MaxIdleConnsPerHost)
		})
	}
}

func TestNewTimeoutClient_OwnTransport(t *testing.T) {
	t.Parallel()

	a := infrahttp.NewTimeoutClient(time.Second)
	b := infrahttp.NewTimeoutClient(time.Second)
	assert.NotSame(t, a.Transport, b.Transport)
	assert.Equal(t, time.Second, a.Timeout)
}
