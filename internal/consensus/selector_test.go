package consensus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/consensus"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/judge"
)

type scriptedJudge struct {
	name    string
	verdict judge.Verdict
	delay   time.Duration
	panics  bool
}

func (s *scriptedJudge) Name() string { return s.name }

func (s *scriptedJudge) JudgeRelevance(context.Context, string, []domain.CandidateDocument) judge.Verdict {
	if s.panics {
		panic("judge exploded")
	}
	time.Sleep(s.delay)
	return s.verdict
}

type scriptedTieBreaker struct {
	verdict judge.Verdict
	gotDocs []domain.CandidateDocument
	rubric  []string
}

func (s *scriptedTieBreaker) BreakTie(_ context.Context, _ string, docs []domain.CandidateDocument, rubric []string) judge.Verdict {
	s.gotDocs = docs
	s.rubric = rubric
	return s.verdict
}

type countingRecorder struct {
	mu       sync.Mutex
	verdicts map[string]domain.VerdictStatus
	modes    []domain.ResolutionMode
}

func (c *countingRecorder) JudgeVerdict(name string, status domain.VerdictStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.verdicts == nil {
		c.verdicts = map[string]domain.VerdictStatus{}
	}
	c.verdicts[name] = status
}

func (c *countingRecorder) Selection(mode domain.ResolutionMode, _ bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modes = append(c.modes, mode)
}

func abcPool() domain.TieredCandidates {
	return domain.TieredCandidates{
		TierA: []domain.CandidateDocument{{ID: "a", URL: "https://x.example/a"}},
		TierB: []domain.CandidateDocument{{ID: "b", URL: "https://x.example/b"}},
		TierC: []domain.CandidateDocument{{ID: "c", URL: "https://x.example/c"}},
	}
}

func newSelector(t *testing.T, a, b judge.Verdict, tb judge.TieBreaker, fallback consensus.Fallback) *consensus.Selector {
	t.Helper()

	s, err := consensus.New(consensus.Config{
		JudgeA:     &scriptedJudge{name: "judgeA", verdict: a},
		JudgeB:     &scriptedJudge{name: "judgeB", verdict: b},
		TieBreaker: tb,
		Rubric:     consensus.StaticRubric{"Politics", "Science"},
		Fallback:   fallback,
		Logger:     logger.NewNop(),
	})
	require.NoError(t, err)
	return s
}

func TestSelect_SingleAgreementResolves(t *testing.T) {
	t.Parallel()

	s := newSelector(t, judge.Success([]string{"a", "b"}), judge.Success([]string{"b", "c"}), nil, "")
	res, err := s.Select(context.Background(), "2021-01-01", abcPool())
	require.NoError(t, err)

	assert.Equal(t, domain.ModeResolved, res.Mode)
	assert.Equal(t, "b", res.SelectedDocumentID)
	assert.Equal(t, domain.TierB, res.SelectedTier)
	assert.Equal(t, []string{"a", "b"}, res.Verdicts["judgeA"].SelectedIDs)
	assert.Equal(t, []string{"b", "c"}, res.Verdicts["judgeB"].SelectedIDs)
}

func TestSelect_NoAgreement(t *testing.T) {
	t.Parallel()

	s := newSelector(t, judge.NoMatches(), judge.Success([]string{"c"}), nil, "")
	res, err := s.Select(context.Background(), "2021-01-01", abcPool())
	require.NoError(t, err)

	assert.Equal(t, domain.ModeNoAgreement, res.Mode)
	assert.Empty(t, res.SelectedDocumentID)
	assert.False(t, res.JudgeError)
	assert.Equal(t, domain.VerdictNoMatches, res.Verdicts["judgeA"].Status)
	assert.Equal(t, []string{"c"}, res.Verdicts["judgeB"].SelectedIDs)
}

func TestSelect_DisjointVotesNoAgreement(t *testing.T) {
	t.Parallel()

	s := newSelector(t, judge.Success([]string{"a"}), judge.Success([]string{"b", "c"}), nil, "")
	res, err := s.Select(context.Background(), "2021-01-01", abcPool())
	require.NoError(t, err)

	assert.Equal(t, domain.ModeNoAgreement, res.Mode)
	assert.Empty(t, res.SelectedDocumentID)
}

func TestSelect_BothJudgesFailedIsDistinguishable(t *testing.T) {
	t.Parallel()

	s := newSelector(t, judge.Failed("timeout"), judge.Failed("malformed"), nil, "")
	res, err := s.Select(context.Background(), "2021-01-01", abcPool())
	require.NoError(t, err)

	assert.Equal(t, domain.ModeNoAgreement, res.Mode)
	assert.True(t, res.JudgeError)
	assert.Equal(t, domain.VerdictError, res.Verdicts["judgeA"].Status)
	assert.Equal(t, "timeout", res.Verdicts["judgeA"].Reason)
}

func TestSelect_OneJudgeFailedIsNotJudgeError(t *testing.T) {
	t.Parallel()

	s := newSelector(t, judge.Failed("timeout"), judge.Success([]string{"a"}), nil, "")
	res, err := s.Select(context.Background(), "2021-01-01", abcPool())
	require.NoError(t, err)

	assert.Equal(t, domain.ModeNoAgreement, res.Mode)
	assert.False(t, res.JudgeError)
}

func TestSelect_JudgePanicDegradesToError(t *testing.T) {
	t.Parallel()

	s, err := consensus.New(consensus.Config{
		JudgeA: &scriptedJudge{name: "judgeA", panics: true},
		JudgeB: &scriptedJudge{name: "judgeB", verdict: judge.Success([]string{"a"})},
		Logger: logger.NewNop(),
	})
	require.NoError(t, err)

	res, err := s.Select(context.Background(), "2021-01-01", abcPool())
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictError, res.Verdicts["judgeA"].Status)
	assert.Equal(t, domain.ModeNoAgreement, res.Mode)
}

func TestSelect_URLVotesAreAttributed(t *testing.T) {
	t.Parallel()

	s := newSelector(t,
		judge.Success([]string{"HTTPS://x.example/c/?ref=feed", "unknown"}),
		judge.Success([]string{"c"}),
		nil, "")
	res, err := s.Select(context.Background(), "2021-01-01", abcPool())
	require.NoError(t, err)

	assert.Equal(t, domain.ModeResolved, res.Mode)
	assert.Equal(t, "c", res.SelectedDocumentID)
	assert.Equal(t, 1, res.Verdicts["judgeA"].Unattributed)
}

func TestSelect_CommutesOverCompletionOrder(t *testing.T) {
	t.Parallel()

	run := func(delayA, delayB time.Duration) domain.Resolution {
		s, err := consensus.New(consensus.Config{
			JudgeA: &scriptedJudge{name: "judgeA", verdict: judge.Success([]string{"c", "a"}), delay: delayA},
			JudgeB: &scriptedJudge{name: "judgeB", verdict: judge.Success([]string{"a", "c"}), delay: delayB},
			Logger: logger.NewNop(),
		})
		require.NoError(t, err)
		res, err := s.Select(context.Background(), "2021-01-01", abcPool())
		require.NoError(t, err)
		return res
	}

	first := run(20*time.Millisecond, 0)
	second := run(0, 20*time.Millisecond)

	assert.Equal(t, first.Agreed, second.Agreed)
	assert.Equal(t, []string{"a", "c"}, first.Agreed)
	assert.Equal(t, first.ProposedDocumentID, second.ProposedDocumentID)
}

func TestSelect_TieBreakChoosesAmongAgreed(t *testing.T) {
	t.Parallel()

	tb := &scriptedTieBreaker{verdict: judge.Success([]string{"https://x.example/c"})}
	s := newSelector(t, judge.Success([]string{"a", "b", "c"}), judge.Success([]string{"c", "b"}), tb, consensus.FallbackFirst)

	res, err := s.Select(context.Background(), "2021-01-01", abcPool())
	require.NoError(t, err)

	assert.Equal(t, domain.ModeMultipleAgreement, res.Mode)
	assert.Empty(t, res.SelectedDocumentID)
	assert.Equal(t, "c", res.ProposedDocumentID)
	assert.True(t, res.TieBreak.Used)
	assert.False(t, res.TieBreak.FallbackUsed)
	require.Len(t, tb.gotDocs, 2)
	assert.Equal(t, "b", tb.gotDocs[0].ID)
	assert.Equal(t, []string{"Politics", "Science"}, tb.rubric)
}

func TestSelect_TieBreakFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		fallback     consensus.Fallback
		tieBreaker   judge.TieBreaker
		wantProposed string
		wantFallback bool
	}{
		{name: "unmappable answer falls back to first", fallback: consensus.FallbackFirst, tieBreaker: &scriptedTieBreaker{verdict: judge.Success([]string{"a"})}, wantProposed: "b", wantFallback: true},
		{name: "tie-break error falls back to first", fallback: consensus.FallbackFirst, tieBreaker: &scriptedTieBreaker{verdict: judge.Failed("boom")}, wantProposed: "b", wantFallback: true},
		{name: "no tie-breaker configured", fallback: consensus.FallbackFirst, wantProposed: "b", wantFallback: true},
		{name: "fallback disabled", fallback: consensus.FallbackNone, tieBreaker: &scriptedTieBreaker{verdict: judge.Success([]string{"zzz"})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newSelector(t, judge.Success([]string{"b", "c"}), judge.Success([]string{"c", "b"}), tt.tieBreaker, tt.fallback)

			res, err := s.Select(context.Background(), "2021-01-01", abcPool())
			require.NoError(t, err)

			assert.Equal(t, domain.ModeMultipleAgreement, res.Mode)
			assert.Equal(t, tt.wantProposed, res.ProposedDocumentID)
			assert.Equal(t, tt.wantFallback, res.TieBreak.FallbackUsed)
			assert.Empty(t, res.SelectedDocumentID)
		})
	}
}

func TestSelect_InvalidDate(t *testing.T) {
	t.Parallel()

	s := newSelector(t, judge.NoMatches(), judge.NoMatches(), nil, "")
	_, err := s.Select(context.Background(), "yesterday", abcPool())
	require.ErrorIs(t, err, domain.ErrInvalidDate)
}

func TestSelect_RecordsMetrics(t *testing.T) {
	t.Parallel()

	rec := &countingRecorder{}
	s, err := consensus.New(consensus.Config{
		JudgeA:   &scriptedJudge{name: "judgeA", verdict: judge.Success([]string{"a"})},
		JudgeB:   &scriptedJudge{name: "judgeB", verdict: judge.Failed("x")},
		Recorder: rec,
		Logger:   logger.NewNop(),
	})
	require.NoError(t, err)

	_, err = s.Select(context.Background(), "2021-01-01", abcPool())
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictSuccess, rec.verdicts["judgeA"])
	assert.Equal(t, domain.VerdictError, rec.verdicts["judgeB"])
	assert.Equal(t, []domain.ResolutionMode{domain.ModeNoAgreement}, rec.modes)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := consensus.New(consensus.Config{JudgeA: &scriptedJudge{name: "x"}})
	require.Error(t, err)

	_, err = consensus.New(consensus.Config{JudgeA: &scriptedJudge{name: "x"}, JudgeB: &scriptedJudge{name: "x"}})
	require.Error(t, err)

	_, err = consensus.New(consensus.Config{JudgeA: &scriptedJudge{name: "x"}, JudgeB: &scriptedJudge{name: "y"}, Fallback: "random"})
	require.Error(t, err)
}
