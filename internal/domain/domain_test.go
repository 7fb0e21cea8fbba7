package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	_, err := domain.ParseDate("2021-01-03")
	require.NoError(t, err)

	for _, bad := range []string{"", "2021-1-3", "03/01/2021", "2021-02-30"} {
		_, err := domain.ParseDate(bad)
		require.ErrorIs(t, err, domain.ErrInvalidDate, bad)
	}
}

func TestDayWindow(t *testing.T) {
	t.Parallel()

	w, err := domain.DayWindow("2021-01-03")
	require.NoError(t, err)

	assert.Equal(t, "2021-01-03T00:00:00Z", w.Start.Format("2006-01-02T15:04:05Z07:00"))
	assert.Equal(t, "2021-01-03T23:59:59Z", w.End.Format("2006-01-02T15:04:05Z07:00"))
	assert.True(t, w.Contains(w.End))
	assert.False(t, w.Contains(w.End.Add(1)))
}

func TestDateRange(t *testing.T) {
	t.Parallel()

	dates, err := domain.DateRange("2020-02-27", "2020-03-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"2020-02-27", "2020-02-28", "2020-02-29", "2020-03-01"}, dates)

	_, err = domain.DateRange("2020-03-01", "2020-02-01")
	require.ErrorIs(t, err, domain.ErrInvalidDate)
}

func TestValidateDates(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, domain.ValidateDates(nil), domain.ErrEmptyInput)
	require.ErrorIs(t, domain.ValidateDates([]string{"2021-01-01", "nope"}), domain.ErrInvalidDate)
	require.NoError(t, domain.ValidateDates([]string{"2021-01-01"}))
}

func TestNewEdge_CanonicalOrder(t *testing.T) {
	t.Parallel()

	e, err := domain.NewEdge("2021-01-05", "2021-01-03")
	require.NoError(t, err)
	assert.Equal(t, "2021-01-03", e.DateA)
	assert.Equal(t, "2021-01-05", e.DateB)

	same, err := domain.NewEdge("2021-01-03", "2021-01-05")
	require.NoError(t, err)
	assert.Equal(t, e.ID(), same.ID())

	_, err = domain.NewEdge("2021-01-03", "2021-01-03")
	require.Error(t, err)
}

func TestTieredCandidates_PoolPreservesTier(t *testing.T) {
	t.Parallel()

	tiers := domain.TieredCandidates{
		TierA: []domain.CandidateDocument{{ID: "a"}},
		TierC: []domain.CandidateDocument{{ID: "c"}},
	}

	pool := tiers.Pool()
	require.Len(t, pool, 2)
	assert.Equal(t, domain.TierA, pool[0].Tier)
	assert.Equal(t, domain.TierC, pool[1].Tier)

	doc, ok := tiers.Find("c")
	require.True(t, ok)
	assert.Equal(t, domain.TierC, doc.Tier)
}

func TestApplyResolution_SelectionOnlyWhenResolved(t *testing.T) {
	t.Parallel()

	rec := domain.DailyRecord{Date: "2021-01-01", SelectedDocumentID: "old", GeneratedText: "stale"}
	rec.ApplyResolution(domain.Resolution{Mode: domain.ModeMultipleAgreement, SelectedDocumentID: "b", ProposedDocumentID: "b"})

	assert.Empty(t, rec.SelectedDocumentID)
	assert.Empty(t, rec.GeneratedText)
	assert.Equal(t, "b", rec.ProposedDocumentID)

	rec.ApplyResolution(domain.Resolution{Mode: domain.ModeResolved, SelectedDocumentID: "b", SelectedTier: domain.TierB})
	assert.Equal(t, "b", rec.SelectedDocumentID)
	assert.Equal(t, domain.TierB, rec.SelectedTier)
}
