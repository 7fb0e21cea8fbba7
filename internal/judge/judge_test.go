package judge_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/circuitbreaker"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/judge"
)

type stubCompleter struct {
	out   string
	err   error
	calls atomic.Int32
	last  string
}

func (s *stubCompleter) Complete(_ context.Context, _, prompt string) (string, error) {
	s.calls.Add(1)
	s.last = prompt
	return s.out, s.err
}

func docs() []domain.CandidateDocument {
	return []domain.CandidateDocument{
		{ID: "a", Title: "Rocket launches", URL: "https://x.example/a", BodyText: "A rocket launches."},
		{ID: "b", Title: "Treaty signed", URL: "https://x.example/b", SummaryText: "Two nations sign."},
	}
}

func TestLLMJudge_JudgeRelevance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		out     string
		err     error
		want    judge.Outcome
		wantIDs []string
	}{
		{name: "success", out: `{"selected_ids": ["b"]}`, want: judge.OutcomeSuccess, wantIDs: []string{"b"}},
		{name: "no matches", out: `{"selected_ids": []}`, want: judge.OutcomeNoMatches},
		{name: "malformed", out: "the treaty one", want: judge.OutcomeError},
		{name: "transport error", err: errors.New("connection refused"), want: judge.OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := &stubCompleter{out: tt.out, err: tt.err}
			j := judge.NewLLMJudge("judgeA", c, logger.NewNop())

			v := j.JudgeRelevance(context.Background(), "2021-01-01", docs())

			assert.Equal(t, tt.want, v.Outcome)
			assert.Equal(t, tt.wantIDs, v.IDs)
			assert.Contains(t, c.last, "2021-01-01")
			assert.Contains(t, c.last, "id: b")
		})
	}
}

func TestLLMJudge_EmptyPoolSkipsCall(t *testing.T) {
	t.Parallel()

	c := &stubCompleter{out: `["a"]`}
	v := judge.NewLLMJudge("judgeA", c, logger.NewNop()).JudgeRelevance(context.Background(), "2021-01-01", nil)

	assert.Equal(t, judge.OutcomeNoMatches, v.Outcome)
	assert.Zero(t, c.calls.Load())
}

func TestLLMJudge_BreakTieIncludesRubric(t *testing.T) {
	t.Parallel()

	c := &stubCompleter{out: `{"id": "a"}`}
	v := judge.NewLLMJudge("tiebreak", c, logger.NewNop()).
		BreakTie(context.Background(), "2021-01-01", docs(), []string{"Space exploration", "Diplomacy"})

	assert.Equal(t, []string{"a"}, v.IDs)
	assert.Contains(t, c.last, "1. Space exploration")
}

func TestLLMDuplicateJudge(t *testing.T) {
	t.Parallel()

	c := &stubCompleter{out: `{"matches": [1]}`}
	got, err := judge.NewLLMDuplicateJudge(c).JudgeDuplicates(context.Background(), "src", []string{"x", "y"})

	require.NoError(t, err)
	assert.Equal(t, []int{1}, got)
	assert.Contains(t, c.last, "[1] y")
	assert.Contains(t, c.last, "must NOT")
}

func TestLLMTextGenerator_CleansOutput(t *testing.T) {
	t.Parallel()

	c := &stubCompleter{out: "\"Entry: A rocket lifts off\"\nextra"}
	got, err := judge.NewLLMTextGenerator(c).GenerateText(context.Background(), "p", judge.Constraints{MinLength: 100, MaxLength: 110})

	require.NoError(t, err)
	assert.Equal(t, "A rocket lifts off", got)
}

func TestSidecarCompleter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/complete":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"text": strings.ToUpper(body["prompt"])})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	c := judge.NewSidecarCompleter(srv.URL, time.Second)
	out, err := c.Complete(context.Background(), "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out)
	require.NoError(t, c.Health(context.Background()))
}

func TestSidecarCompleter_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := judge.NewSidecarCompleter(srv.URL, time.Second).Complete(context.Background(), "", "x")
	require.ErrorIs(t, err, judge.ErrTransient)
}

func TestSidecarCompleter_ClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"prompt too long"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := judge.NewSidecarCompleter(srv.URL, time.Second).Complete(context.Background(), "", "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, judge.ErrTransient)
	assert.Contains(t, err.Error(), "prompt too long")
}

func TestAnthropicCompleter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "test-model",
			"content": [{"type": "text", "text": "{\"selected_ids\": [\"a\"]}"}],
			"stop_reason": "end_turn", "usage": {"input_tokens": 1, "output_tokens": 1}
		}`))
	}))
	t.Cleanup(srv.Close)

	c := judge.NewAnthropicCompleter(judge.AnthropicConfig{APIKey: "k", BaseURL: srv.URL, Model: "test-model"})
	out, err := c.Complete(context.Background(), "sys", "prompt")

	require.NoError(t, err)
	assert.JSONEq(t, `{"selected_ids": ["a"]}`, out)
}

func TestAnthropicCompleter_OverloadedIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	t.Cleanup(srv.Close)

	c := judge.NewAnthropicCompleter(judge.AnthropicConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	_, err := c.Complete(context.Background(), "", "prompt")
	require.ErrorIs(t, err, judge.ErrTransient)
}

func TestGuarded_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	inner := completerFunc(func() (string, error) {
		if calls.Add(1) < 3 {
			return "", judge.ErrTransient
		}
		return "ok", nil
	})

	var observed atomic.Int32
	g := judge.NewGuarded("judgeA", inner, judge.GuardConfig{
		RequestsPerSecond: 1000,
		Retry:             retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond},
		Breaker:           circuitbreaker.Config{FailureThreshold: 10},
	}, logger.NewNop(), func(string, error, time.Duration) { observed.Add(1) })

	out, err := g.Complete(context.Background(), "", "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), observed.Load())
}

func TestGuarded_BreakerOpensOnRepeatedFailure(t *testing.T) {
	t.Parallel()

	inner := completerFunc(func() (string, error) { return "", errors.New("bad request") })
	g := judge.NewGuarded("judgeB", inner, judge.GuardConfig{
		Retry:   retry.Config{MaxAttempts: 1},
		Breaker: circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Hour},
	}, logger.NewNop(), nil)

	_, _ = g.Complete(context.Background(), "", "p")
	_, _ = g.Complete(context.Background(), "", "p")
	_, err := g.Complete(context.Background(), "", "p")

	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, circuitbreaker.StateOpen, g.BreakerState())
}

type completerFunc func() (string, error)

func (f completerFunc) Complete(context.Context, string, string) (string, error) { return f() }
