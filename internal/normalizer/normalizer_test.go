package normalizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/normalizer"
)

func pool() []domain.CandidateDocument {
	return []domain.CandidateDocument{
		{ID: "a", URL: "https://News.example.com/2021/01/launch/"},
		{ID: "b", URL: "https://archive.example.org/story?id=42&utm_source=feed"},
		{ID: "c", URL: "https://wire.example.net/very/long/path/to/the/original-report"},
		{ID: "d"},
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		wantID string
		wantOK bool
	}{
		{name: "exact id", raw: "b", wantID: "b", wantOK: true},
		{name: "id with whitespace", raw: "  d ", wantID: "d", wantOK: true},
		{name: "exact url", raw: "https://archive.example.org/story?id=42&utm_source=feed", wantID: "b", wantOK: true},
		{name: "case and trailing slash", raw: "https://news.example.com/2021/01/launch", wantID: "a", wantOK: true},
		{name: "query noise", raw: "https://archive.example.org/story?utm_medium=x", wantID: "b", wantOK: true},
		{name: "truncated url", raw: "wire.example.net/very/long/path", wantID: "c", wantOK: true},
		{name: "redirect wrapper is not attributed", raw: "https://r.example/?u=x#https://news.example.com/2021/01/launch/extra", wantOK: false},
		{name: "unknown", raw: "https://elsewhere.example/", wantOK: false},
		{name: "empty", raw: "", wantOK: false},
		{name: "fragment too short to contain", raw: "example", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, ok := normalizer.Resolve(tt.raw, pool())
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestResolve_RoundTrip(t *testing.T) {
	t.Parallel()

	p := pool()
	for _, doc := range p {
		id, ok := normalizer.Resolve(doc.ID, p)
		assert.True(t, ok)
		assert.Equal(t, doc.ID, id)

		if doc.URL == "" {
			continue
		}
		id, ok = normalizer.Resolve(doc.URL, p)
		assert.True(t, ok)
		assert.Equal(t, doc.ID, id)
	}
}

func TestResolveAll_PoolOrderAndMisses(t *testing.T) {
	t.Parallel()

	ids, misses := normalizer.ResolveAll([]string{"c", "nope", "a", "https://news.example.com/2021/01/launch"}, pool())

	assert.Equal(t, []string{"a", "c"}, ids)
	assert.Equal(t, 1, misses)
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://x.example/a", normalizer.NormalizeURL("HTTPS://X.example/a/?q=1#frag"))
	assert.Equal(t, "", normalizer.NormalizeURL("  "))
}
