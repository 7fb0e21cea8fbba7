package retriever_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/retriever"
)

type fakeSearcher struct {
	mu      sync.Mutex
	queries []retriever.Query
	byQuery map[string][]domain.CandidateDocument
	failing map[string]bool
	barrier *sync.WaitGroup
}

func (f *fakeSearcher) Search(_ context.Context, q retriever.Query) ([]domain.CandidateDocument, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if f.barrier != nil {
		f.barrier.Done()
		f.barrier.Wait()
	}
	if f.failing[q.Text] {
		return nil, errors.New("search backend down")
	}
	return f.byQuery[q.Text], nil
}

func tiers() map[domain.Tier]retriever.TierQuery {
	return map[domain.Tier]retriever.TierQuery{
		domain.TierA: {Query: "policy", Limit: 2},
		domain.TierB: {Query: "markets"},
		domain.TierC: {Query: "technology"},
	}
}

func TestRetrieveTiers_PartialFailureIsEmptyTier(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{
		byQuery: map[string][]domain.CandidateDocument{
			"policy":     {{ID: "a1"}, {ID: "a2"}, {ID: "a3"}},
			"technology": {{URL: "https://x.example/c"}},
		},
		failing: map[string]bool{"markets": true},
	}

	got, err := retriever.New(s, tiers(), logger.NewNop()).RetrieveTiers(context.Background(), "2021-01-03")
	require.NoError(t, err)

	assert.Len(t, got.TierA, 2, "tier limit applies")
	assert.NotNil(t, got.TierB)
	assert.Empty(t, got.TierB)
	require.Len(t, got.TierC, 1)
	assert.NotEmpty(t, got.TierC[0].ID, "missing ids are derived")
	assert.Equal(t, domain.TierC, got.TierC[0].Tier)

	for _, q := range s.queries {
		assert.Equal(t, "2021-01-03T00:00:00Z", q.Window.Start.Format(time.RFC3339))
		assert.Equal(t, "2021-01-03T23:59:59Z", q.Window.End.Format(time.RFC3339))
	}
}

func TestRetrieveTiers_RunsConcurrently(t *testing.T) {
	t.Parallel()

	var barrier sync.WaitGroup
	barrier.Add(3)
	s := &fakeSearcher{barrier: &barrier}

	done := make(chan struct{})
	go func() {
		_, _ = retriever.New(s, tiers(), logger.NewNop()).RetrieveTiers(context.Background(), "2021-01-03")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tier searches did not run concurrently")
	}
}

func TestRetrieveTiers_InvalidDate(t *testing.T) {
	t.Parallel()

	_, err := retriever.New(&fakeSearcher{}, tiers(), logger.NewNop()).RetrieveTiers(context.Background(), "01/03/2021")
	require.ErrorIs(t, err, domain.ErrInvalidDate)
}

func TestRetrieveTiers_ObserverSeesEveryTier(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := map[domain.Tier]bool{}
	r := retriever.New(&fakeSearcher{failing: map[string]bool{"policy": true}}, tiers(), logger.NewNop(),
		retriever.WithObserver(func(tier domain.Tier, err error, _ time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			seen[tier] = err != nil
		}))

	_, err := r.RetrieveTiers(context.Background(), "2021-01-03")
	require.NoError(t, err)
	assert.Equal(t, map[domain.Tier]bool{domain.TierA: true, domain.TierB: false, domain.TierC: false}, seen)
}

func TestHTMLToText(t *testing.T) {
	t.Parallel()

	got := retriever.HTMLToText(`<p>Rocket <b>launches</b></p><script>x()</script>  <p>today &amp; tomorrow</p>`)
	assert.Equal(t, "Rocket launches today & tomorrow", got)
	assert.Equal(t, "plain text", retriever.HTMLToText("  plain \n text "))
}

func TestMulti_MergesAndDedupes(t *testing.T) {
	t.Parallel()

	first := &fakeSearcher{byQuery: map[string][]domain.CandidateDocument{"q": {{ID: "1", URL: "https://x.example/a/"}}}}
	second := &fakeSearcher{byQuery: map[string][]domain.CandidateDocument{"q": {{ID: "2", URL: "https://X.example/a"}, {ID: "3"}}}}
	broken := &fakeSearcher{failing: map[string]bool{"q": true}}

	got, err := retriever.Multi{first, broken, second}.Search(context.Background(), retriever.Query{Text: "q"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)

	_, err = retriever.Multi{broken}.Search(context.Background(), retriever.Query{Text: "q"})
	require.Error(t, err)
}

func TestArchiveSearcher(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		assert.Contains(t, r.URL.Path, "/archive/_search")
		_, _ = fmt.Fprint(w, `{"hits":{"hits":[{"_id":"doc-1","_source":{
			"title":"Treaty signed","url":"https://x.example/t",
			"published_at":"2021-01-03T10:00:00Z","body":"<p>Two nations sign.</p>","summary":"sign"}}]}}`)
	}))
	t.Cleanup(srv.Close)

	client, err := es.NewClient(es.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	window, err := domain.DayWindow("2021-01-03")
	require.NoError(t, err)

	docs, err := retriever.NewArchiveSearcher(client, "archive").Search(context.Background(), retriever.Query{Text: "treaty", Window: window, Limit: 5})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].ID)
	assert.Equal(t, "Two nations sign.", docs[0].BodyText)
}

const feedXML = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>News</title>
<item><title>In window</title><link>https://x.example/in</link><guid>g1</guid>
<pubDate>Sun, 03 Jan 2021 12:00:00 GMT</pubDate><description>&lt;b&gt;Body&lt;/b&gt;</description></item>
<item><title>Day before</title><link>https://x.example/out</link><guid>g2</guid>
<pubDate>Sat, 02 Jan 2021 12:00:00 GMT</pubDate></item>
</channel></rss>`

func TestNewsSearcher_FiltersWindow(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = fmt.Fprint(w, feedXML)
	}))
	t.Cleanup(srv.Close)

	window, err := domain.DayWindow("2021-01-03")
	require.NoError(t, err)

	s := retriever.NewNewsSearcher(srv.URL+"/rss?q=%s", time.Second)
	docs, err := s.Search(context.Background(), retriever.Query{Text: "treaty", Window: window, Limit: 10})
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "g1", docs[0].ID)
	assert.Equal(t, "Body", docs[0].BodyText)
	assert.Equal(t, "treaty after:2021-01-02 before:2021-01-04", gotQuery)
}
