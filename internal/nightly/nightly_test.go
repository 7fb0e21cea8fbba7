package nightly

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/pipeline"
)

type fakeRunner struct {
	calls     []string
	curate    domain.BatchResult
	curateErr error
	dedupeErr error
}

func (f *fakeRunner) CurateRange(_ context.Context, dates []string) (domain.BatchResult, error) {
	f.calls = append(f.calls, "curate:"+dates[0])
	return f.curate, f.curateErr
}

func (f *fakeRunner) DedupeRange(_ context.Context, dates []string) (domain.BatchResult, error) {
	f.calls = append(f.calls, "dedupe:"+dates[0])
	return domain.BatchResult{Success: f.dedupeErr == nil}, f.dedupeErr
}

func fixedNightly(t *testing.T, runner Runner) *Nightly {
	t.Helper()

	n, err := New(runner, "0 3 * * *", logger.NewNop())
	require.NoError(t, err)
	n.now = func() time.Time { return time.Date(2021, 3, 1, 1, 30, 0, 0, time.UTC) }
	return n
}

func TestNew_InvalidSchedule(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeRunner{}, "every night", logger.NewNop())
	require.Error(t, err)

	_, err = New(&fakeRunner{}, "0 0 3 * * *", logger.NewNop())
	require.Error(t, err, "six-field expressions are rejected")
}

func TestNightly_TargetAndNext(t *testing.T) {
	t.Parallel()

	n := fixedNightly(t, &fakeRunner{})
	assert.Equal(t, "2021-02-28", n.Target())
	assert.Equal(t, time.Date(2021, 3, 1, 3, 0, 0, 0, time.UTC), n.Next())
}

func TestRunOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		runner    *fakeRunner
		wantCalls []string
		wantErr   bool
	}{
		{
			name:      "curate then dedupe",
			runner:    &fakeRunner{curate: domain.BatchResult{Success: true}},
			wantCalls: []string{"curate:2021-02-28", "dedupe:2021-02-28"},
		},
		{
			name:      "failed curation skips dedupe",
			runner:    &fakeRunner{curate: domain.BatchResult{Failed: 1}},
			wantCalls: []string{"curate:2021-02-28"},
		},
		{
			name:      "curate conflict is an error",
			runner:    &fakeRunner{curateErr: errors.New("curate is already running")},
			wantCalls: []string{"curate:2021-02-28"},
			wantErr:   true,
		},
		{
			name:      "dedupe disabled is not an error",
			runner:    &fakeRunner{curate: domain.BatchResult{Success: true}, dedupeErr: pipeline.ErrDuplicatesDisabled},
			wantCalls: []string{"curate:2021-02-28", "dedupe:2021-02-28"},
		},
		{
			name:      "dedupe failure is an error",
			runner:    &fakeRunner{curate: domain.BatchResult{Success: true}, dedupeErr: errors.New("database gone")},
			wantCalls: []string{"curate:2021-02-28", "dedupe:2021-02-28"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := fixedNightly(t, tt.runner).RunOnce(context.Background())
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, tt.runner.calls)
		})
	}
}

func TestNightly_StartStop(t *testing.T) {
	t.Parallel()

	n := fixedNightly(t, &fakeRunner{})
	require.NoError(t, n.Start(context.Background()))
	require.NoError(t, n.Start(context.Background()))
	assert.Len(t, n.cron.Entries(), 1)

	n.Stop()
	n.Stop()
}
