package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	infraerrors "github.com/jonesrussell/north-cloud/timeline/infrastructure/errors"
	infrahttp "github.com/jonesrussell/north-cloud/timeline/infrastructure/http"
)

const defaultSidecarTimeout = 60 * time.Second

type sidecarRequest struct {
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
}

type sidecarResponse struct {
	Text string `json:"text"`
}

// SidecarCompleter calls a self-hosted model behind POST /complete.
type SidecarCompleter struct {
	baseURL string
	client  *http.Client
}

// NewSidecarCompleter creates a sidecar completer for baseURL.
func NewSidecarCompleter(baseURL string, timeout time.Duration) *SidecarCompleter {
	if timeout <= 0 {
		timeout = defaultSidecarTimeout
	}
	return &SidecarCompleter{baseURL: baseURL, client: infrahttp.NewTimeoutClient(timeout)}
}

// Complete posts the prompt and returns the "text" field of the reply.
func (s *SidecarCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(sidecarRequest{System: system, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/complete", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sidecar request: %w", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if httpErr := infraerrors.FromResponse(resp); httpErr != nil {
		if infraerrors.Retryable(httpErr) {
			return "", fmt.Errorf("%w: sidecar: %w", ErrTransient, httpErr)
		}
		return "", fmt.Errorf("sidecar: %w", httpErr)
	}

	var out sidecarResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&out); decodeErr != nil {
		return "", fmt.Errorf("decode response: %w", decodeErr)
	}
	if out.Text == "" {
		return "", ErrEmptyCompletion
	}
	return out.Text, nil
}

// Health checks GET /health on the sidecar.
func (s *SidecarCompleter) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sidecar unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if httpErr := infraerrors.FromResponse(resp); httpErr != nil {
		return fmt.Errorf("sidecar unhealthy: %w", httpErr)
	}
	return nil
}
