package scheduler_test

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
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/scheduler"
)

func dates(n int) []string {
	out := make([]string, n)
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = start.AddDate(0, 0, i).Format(domain.DateLayout)
	}
	return out
}

func TestRun_NeverExceedsMaxConcurrency(t *testing.T) {
	t.Parallel()

	const maxConcurrency = 4
	s := scheduler.New(scheduler.JobCurate, nil, logger.NewNop())

	var current, peak atomic.Int64
	var mapOverflow atomic.Bool
	worker := func(context.Context, string) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if s.InFlight() > maxConcurrency {
			mapOverflow.Store(true)
		}
		time.Sleep(2 * time.Millisecond)
		current.Add(-1)
		return nil
	}

	ch, err := s.Run(context.Background(), dates(60), maxConcurrency, worker)
	require.NoError(t, err)
	res := scheduler.Summarize(scheduler.Collect(ch))

	assert.LessOrEqual(t, peak.Load(), int64(maxConcurrency))
	assert.Positive(t, peak.Load())
	assert.False(t, mapOverflow.Load())
	assert.Equal(t, domain.BatchResult{Success: true, Total: 60, Processed: 60, Succeeded: 60}, res)
	assert.Equal(t, 0, s.InFlight())
}

func TestRun_ProgressIsMonotonicAndBounded(t *testing.T) {
	t.Parallel()

	s := scheduler.New(scheduler.JobCurate, nil, logger.NewNop())
	worker := func(context.Context, string) error {
		time.Sleep(time.Millisecond)
		return nil
	}

	ch, err := s.Run(context.Background(), dates(40), 3, worker)
	require.NoError(t, err)

	var violations []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		var last int64
		for s.Status().IsRunning {
			st := s.Status()
			if st.Processed < last {
				violations = append(violations, fmt.Sprintf("processed went back from %d to %d", last, st.Processed))
			}
			if st.Processed > st.Total {
				violations = append(violations, fmt.Sprintf("processed %d exceeds total %d", st.Processed, st.Total))
			}
			last = st.Processed
		}
	}()

	scheduler.Collect(ch)
	<-done

	assert.Empty(t, violations)
	st := s.Status()
	assert.Equal(t, int64(40), st.Total)
	assert.Equal(t, int64(40), st.Processed)
	assert.False(t, st.IsRunning)
}

func TestRun_ConflictForSameJobClass(t *testing.T) {
	t.Parallel()

	reg := scheduler.NewRegistry(nil, logger.NewNop())
	release := make(chan struct{})
	blocking := func(context.Context, string) error {
		<-release
		return nil
	}

	first, err := reg.Get(scheduler.JobCurate).Run(context.Background(), dates(2), 2, blocking)
	require.NoError(t, err)

	_, err = reg.Get(scheduler.JobCurate).Run(context.Background(), dates(1), 1, blocking)
	require.ErrorIs(t, err, scheduler.ErrConflict)

	other, err := reg.Get(scheduler.JobDedupe).Run(context.Background(), dates(1), 1, blocking)
	require.NoError(t, err, "other job classes are independent")

	close(release)
	assert.True(t, scheduler.Summarize(scheduler.Collect(first)).Success)
	assert.True(t, scheduler.Summarize(scheduler.Collect(other)).Success)

	again, err := reg.Get(scheduler.JobCurate).Run(context.Background(), dates(1), 1, func(context.Context, string) error { return nil })
	require.NoError(t, err, "class is free once the run ends")
	scheduler.Collect(again)
}

func TestRun_StopIsHonouredAtSchedulingPoint(t *testing.T) {
	t.Parallel()

	const maxConcurrency = 2
	s := scheduler.New(scheduler.JobDedupe, nil, logger.NewNop())
	var once sync.Once
	worker := func(context.Context, string) error {
		once.Do(func() { s.RequestStop() })
		time.Sleep(time.Millisecond)
		return nil
	}

	items := dates(20)
	ch, err := s.Run(context.Background(), items, maxConcurrency, worker)
	require.NoError(t, err)
	res := scheduler.Summarize(scheduler.Collect(ch))

	assert.True(t, res.StoppedEarly)
	assert.False(t, res.Success)
	assert.Equal(t, 20, res.Total)
	assert.Equal(t, res.Total, res.Processed+len(res.Remaining))
	assert.LessOrEqual(t, res.Processed, 2*maxConcurrency, "at most one extra wave completes after stop")

	resumed, err := s.Run(context.Background(), res.Remaining, maxConcurrency, func(context.Context, string) error { return nil })
	require.NoError(t, err)
	rest := scheduler.Summarize(scheduler.Collect(resumed))
	assert.True(t, rest.Success)
	assert.Equal(t, len(res.Remaining), rest.Succeeded)
}

func TestRun_CancelledContextStopsScheduling(t *testing.T) {
	t.Parallel()

	s := scheduler.New(scheduler.JobCurate, nil, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	worker := func(context.Context, string) error {
		cancel()
		return nil
	}

	ch, err := s.Run(ctx, dates(10), 1, worker)
	require.NoError(t, err)
	res := scheduler.Summarize(scheduler.Collect(ch))
	assert.True(t, res.StoppedEarly)
	assert.Equal(t, 1, res.Processed)
}

func TestRun_FailuresAndPanicsAreCounted(t *testing.T) {
	t.Parallel()

	s := scheduler.New(scheduler.JobCurate, nil, logger.NewNop())
	items := dates(4)
	worker := func(_ context.Context, item string) error {
		switch item {
		case items[1]:
			return errors.New("search unavailable")
		case items[2]:
			panic("nil record")
		}
		return nil
	}

	ch, err := s.Run(context.Background(), append(items, items[0]), 2, worker)
	require.NoError(t, err)
	res := scheduler.Summarize(scheduler.Collect(ch))

	assert.Equal(t, domain.BatchResult{Total: 4, Processed: 4, Succeeded: 2, Failed: 2}, res)
}

func TestRun_InvalidInput(t *testing.T) {
	t.Parallel()

	s := scheduler.New(scheduler.JobCurate, nil, logger.NewNop())
	_, err := s.Run(context.Background(), nil, 1, func(context.Context, string) error { return nil })
	require.ErrorIs(t, err, domain.ErrEmptyInput)

	_, err = s.Run(context.Background(), dates(1), 1, nil)
	require.Error(t, err)

	assert.False(t, s.Status().IsRunning)
	assert.False(t, s.RequestStop(), "nothing to stop")
}

func TestSummarize_RemainingSorted(t *testing.T) {
	t.Parallel()

	res := scheduler.Summarize([]scheduler.ItemResult{
		{Item: "2021-01-05", Skipped: true},
		{Item: "2021-01-01"},
		{Item: "2021-01-03", Skipped: true},
	})
	assert.Equal(t, []string{"2021-01-03", "2021-01-05"}, res.Remaining)
	assert.True(t, res.StoppedEarly)
	assert.Equal(t, 1, res.Succeeded)
}
