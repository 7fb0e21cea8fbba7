package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/database"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/generator"
	"github.com/jonesrussell/north-cloud/timeline/internal/pipeline"
	"github.com/jonesrussell/north-cloud/timeline/internal/scheduler"
)

type memoryRecords struct {
	mu      sync.Mutex
	records map[string]domain.DailyRecord
	puts    int
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{records: map[string]domain.DailyRecord{}}
}

func (m *memoryRecords) Get(_ context.Context, date string) (*domain.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[date]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrRecordNotFound, date)
	}
	return &rec, nil
}

func (m *memoryRecords) Put(_ context.Context, rec *domain.DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.records[rec.Date] = *rec
	return nil
}

func (m *memoryRecords) RecordsInRange(_ context.Context, start, end string) ([]domain.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DailyRecord
	for d, r := range m.records {
		if d >= start && d <= end {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRecords) SetFlag(_ context.Context, date string, flag domain.Flag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[date]
	if !ok {
		return fmt.Errorf("%w: %s", database.ErrRecordNotFound, date)
	}
	rec.Flag = flag
	m.records[date] = rec
	return nil
}

type stubRetriever struct {
	calls atomic.Int32
	delay time.Duration
	gate  chan struct{}
}

func (s *stubRetriever) RetrieveTiers(_ context.Context, date string) (domain.TieredCandidates, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	time.Sleep(s.delay)
	return domain.TieredCandidates{
		TierA: []domain.CandidateDocument{{ID: "a-" + date, Title: "A", URL: "https://x.example/a", Tier: domain.TierA}},
		TierB: []domain.CandidateDocument{{ID: "b-" + date, Title: "B", URL: "https://x.example/b", Tier: domain.TierB}},
	}, nil
}

type stubSelector struct {
	mode domain.ResolutionMode
	err  error
}

func (s *stubSelector) Select(_ context.Context, date string, tiers domain.TieredCandidates) (domain.Resolution, error) {
	if s.err != nil {
		return domain.Resolution{}, s.err
	}
	res := domain.Resolution{
		Mode:     s.mode,
		Verdicts: map[string]domain.JudgeVerdict{"judgeA": {Status: domain.VerdictSuccess, SelectedIDs: []string{"b-" + date}}},
	}
	if s.mode == domain.ModeResolved {
		res.SelectedDocumentID = tiers.TierB[0].ID
		res.SelectedTier = domain.TierB
	}
	return res, nil
}

type stubDescriber struct {
	calls atomic.Int32
	err   error
	soft  bool
}

func (s *stubDescriber) Generate(_ context.Context, doc domain.CandidateDocument, _ string) (generator.Outcome, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return generator.Outcome{}, s.err
	}
	return generator.Outcome{Text: fmt.Sprintf("Entry %d for %s", n, doc.ID), SoftViolation: s.soft}, nil
}

type stubAnalyzer struct {
	calls atomic.Int32
	fail  string
}

func (s *stubAnalyzer) AnalyzeWindow(_ context.Context, date string) ([]domain.DuplicateEdge, error) {
	s.calls.Add(1)
	if date == s.fail {
		return nil, errors.New("judge unavailable")
	}
	return nil, nil
}

type fixture struct {
	svc       *pipeline.Service
	records   *memoryRecords
	retriever *stubRetriever
	selector  *stubSelector
	describer *stubDescriber
	analyzer  *stubAnalyzer
}

func newFixture(mode domain.ResolutionMode) *fixture {
	f := &fixture{
		records:   newMemoryRecords(),
		retriever: &stubRetriever{},
		selector:  &stubSelector{mode: mode},
		describer: &stubDescriber{},
		analyzer:  &stubAnalyzer{},
	}
	f.svc = pipeline.New(pipeline.Deps{
		Retriever:  f.retriever,
		Selector:   f.selector,
		Describer:  f.describer,
		Records:    f.records,
		Duplicates: f.analyzer,
		Logger:     logger.NewNop(),
	}, pipeline.Config{CurateConcurrency: 3})
	return f
}

func TestCurateDate_Resolved(t *testing.T) {
	t.Parallel()

	f := newFixture(domain.ModeResolved)
	rec, err := f.svc.CurateDate(context.Background(), "2021-01-01")
	require.NoError(t, err)

	assert.Equal(t, domain.ModeResolved, rec.ResolutionMode)
	assert.Equal(t, "b-2021-01-01", rec.SelectedDocumentID)
	assert.Equal(t, "Entry 1 for b-2021-01-01", rec.GeneratedText)
	assert.False(t, rec.GenerationViolation)

	stored, err := f.records.Get(context.Background(), "2021-01-01")
	require.NoError(t, err)
	assert.Equal(t, rec.GeneratedText, stored.GeneratedText)
	assert.Len(t, stored.TieredCandidates.TierA, 1)
}

func TestCurateDate_NoAgreementSkipsGeneration(t *testing.T) {
	t.Parallel()

	f := newFixture(domain.ModeNoAgreement)
	rec, err := f.svc.CurateDate(context.Background(), "2021-01-01")
	require.NoError(t, err)

	assert.Equal(t, domain.ModeNoAgreement, rec.ResolutionMode)
	assert.Empty(t, rec.SelectedDocumentID)
	assert.Empty(t, rec.GeneratedText)
	assert.Equal(t, int32(0), f.describer.calls.Load())
}

func TestCurateDate_CandidatesSurviveSelectionFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(domain.ModeResolved)
	f.selector.err = errors.New("selector exploded")

	_, err := f.svc.CurateDate(context.Background(), "2021-01-01")
	require.Error(t, err)

	stored, getErr := f.records.Get(context.Background(), "2021-01-01")
	require.NoError(t, getErr)
	assert.Equal(t, 2, stored.TieredCandidates.Len())
	assert.Equal(t, domain.ModeUnresolved, stored.ResolutionMode)
}

func TestCurateDate_GenerationFailureIsRecorded(t *testing.T) {
	t.Parallel()

	f := newFixture(domain.ModeResolved)
	f.describer.err = errors.New("generator down")

	rec, err := f.svc.CurateDate(context.Background(), "2021-01-01")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeResolved, rec.ResolutionMode)
	assert.Empty(t, rec.GeneratedText)
	assert.True(t, rec.GenerationViolation)
}

func TestCurateDate_InvalidDate(t *testing.T) {
	t.Parallel()

	f := newFixture(domain.ModeResolved)
	_, err := f.svc.CurateDate(context.Background(), "2021-13-01")
	require.ErrorIs(t, err, domain.ErrInvalidDate)
}

func TestCurateDate_ConcurrentCallsShareSelection(t *testing.T) {
	t.Parallel()

	f := newFixture(domain.ModeResolved)
	f.retriever.delay = 30 * time.Millisecond

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CurateDate(context.Background(), "2021-01-01")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.retriever.calls.Load())
}

func TestCurateDate_CachedSelectionKeepsText(t *testing.T) {
	t.Parallel()

	f := newFixture(domain.ModeResolved)
	ctx := context.Background()

	_, err := f.svc.CurateDate(ctx, "2021-01-01")
	require.NoError(t, err)
	rec, err := f.svc.CurateDate(ctx, "2021-01-01")
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.retriever.calls.Load())
	assert.Equal(t, int32(1), f.describer.calls.Load())
	assert.Equal(t, "Entry 1 for b-2021-01-01", rec.GeneratedText)
}

func TestReanalyze_RefreshesSelectionAndText(t *testing.T) {
	t.Parallel()

	f := newFixture(domain.ModeResolved)
	ctx := context.Background()

	_, err := f.svc.CurateDate(ctx, "2021-01-01")
	require.NoError(t, err)
	rec, err := f.svc.Reanalyze(ctx, "2021-01-01")
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.retriever.calls.Load())
	assert.Equal(t, "Entry 2 for b-2021-01-01", rec.GeneratedText)
}

func TestConfirmSelection(t *testing.T) {
	t.Parallel()

	f := newFixture(domain.ModeMultipleAgreement)
	ctx := context.Background()

	rec, err := f.svc.CurateDate(ctx, "2021-01-01")
	require.NoError(t, err)
	require.Empty(t, rec.SelectedDocumentID)

	_, err = f.svc.ConfirmSelection(ctx, "2021-01-01", "nope")
	require.ErrorIs(t, err, pipeline.ErrUnknownDocument)

	rec, err = f.svc.ConfirmSelection(ctx, "2021-01-01", "a-2021-01-01")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeResolved, rec.ResolutionMode)
	assert.Equal(t, domain.TierA, rec.SelectedTier)
	assert.Equal(t, "Entry 1 for a-2021-01-01", rec.GeneratedText)

	_, err = f.svc.ConfirmSelection(ctx, "2021-02-01", "a-2021-02-01")
	require.ErrorIs(t, err, database.ErrRecordNotFound)
}

func TestFlag(t *testing.T) {
	t.Parallel()

	f := newFixture(domain.ModeResolved)
	ctx := context.Background()

	_, err := f.svc.Flag(ctx, "2021-01-01", domain.Flag{IsFlagged: true})
	require.ErrorIs(t, err, database.ErrRecordNotFound)
	_, err = f.svc.Flag(ctx, "2021-13-01", domain.Flag{IsFlagged: true})
	require.ErrorIs(t, err, domain.ErrInvalidDate)

	_, err = f.svc.CurateDate(ctx, "2021-01-01")
	require.NoError(t, err)

	rec, err := f.svc.Flag(ctx, "2021-01-01", domain.Flag{IsFlagged: true, Reason: "wrong year"})
	require.NoError(t, err)
	assert.Equal(t, domain.Flag{IsFlagged: true, Reason: "wrong year"}, rec.Flag)

	rec, err = f.svc.Flag(ctx, "2021-01-01", domain.Flag{Reason: "stale"})
	require.NoError(t, err)
	assert.Equal(t, domain.Flag{}, rec.Flag)
}

func TestCurateRange_Summarizes(t *testing.T) {
	t.Parallel()

	f := newFixture(domain.ModeResolved)
	dates, err := domain.DateRange("2021-01-01", "2021-01-10")
	require.NoError(t, err)

	res, err := f.svc.CurateRange(context.Background(), dates)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 10, res.Total)
	assert.Equal(t, 10, res.Succeeded)
	assert.NotEmpty(t, res.RunID)

	st := f.svc.Status(scheduler.JobCurate)
	require.NotNil(t, st.Last)
	assert.Equal(t, res.RunID, st.Last.RunID)
	assert.Equal(t, int64(10), st.Progress.Processed)
}

func TestStartCurate_Conflict(t *testing.T) {
	t.Parallel()

	f := newFixture(domain.ModeResolved)
	f.retriever.gate = make(chan struct{})

	run, err := f.svc.StartCurate(context.Background(), []string{"2021-01-01"})
	require.NoError(t, err)

	_, err = f.svc.StartCurate(context.Background(), []string{"2021-01-02"})
	require.ErrorIs(t, err, scheduler.ErrConflict)
	assert.True(t, f.svc.Status(scheduler.JobCurate).Progress.IsRunning)

	close(f.retriever.gate)
	res := <-run.Done
	assert.True(t, res.Success)
}

func TestDedupeRange(t *testing.T) {
	t.Parallel()

	f := newFixture(domain.ModeResolved)
	f.analyzer.fail = "2021-01-02"

	res, err := f.svc.DedupeRange(context.Background(), []string{"2021-01-03", "2021-01-01", "2021-01-02"})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int32(3), f.analyzer.calls.Load())

	_, err = f.svc.DedupeRange(context.Background(), []string{"bad"})
	require.ErrorIs(t, err, domain.ErrInvalidDate)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) add(e string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) BatchStarted(job, _ string, total int) {
	n.add(fmt.Sprintf("started %s %d", job, total))
}

func (n *recordingNotifier) ItemFinished(_, _ string, item scheduler.ItemResult) {
	n.add("item " + item.Item)
}

func (n *recordingNotifier) BatchFinished(_ string, res domain.BatchResult) {
	n.add(fmt.Sprintf("finished %d", res.Succeeded))
}

func TestCurateRange_NotifiesProgress(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	svc := pipeline.New(pipeline.Deps{
		Retriever: &stubRetriever{},
		Selector:  &stubSelector{mode: domain.ModeResolved},
		Describer: &stubDescriber{},
		Records:   newMemoryRecords(),
		Notifier:  notifier,
		Logger:    logger.NewNop(),
	}, pipeline.Config{CurateConcurrency: 1})

	_, err := svc.CurateRange(context.Background(), []string{"2021-01-02", "2021-01-01"})
	require.NoError(t, err)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []string{
		"started curate 2",
		"item 2021-01-01",
		"item 2021-01-02",
		"finished 2",
	}, notifier.events)
}
