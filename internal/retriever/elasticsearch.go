package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

// ArchiveSearcher queries an Elasticsearch index of archived articles.
type ArchiveSearcher struct {
	client *es.Client
	index  string
}

// NewArchiveSearcher creates a searcher over index.
func NewArchiveSearcher(client *es.Client, index string) *ArchiveSearcher {
	return &ArchiveSearcher{client: client, index: index}
}

type archiveSource struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Body        string    `json:"body"`
	Summary     string    `json:"summary"`
}

type archiveResponse struct {
	Hits struct {
		Hits []struct {
			ID     string        `json:"_id"`
			Source archiveSource `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search implements Searcher.
func (s *ArchiveSearcher) Search(ctx context.Context, q Query) ([]domain.CandidateDocument, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildArchiveQuery(q)); err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
		s.client.Search.WithSize(q.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned error [%d]: %s", res.StatusCode, string(body))
	}

	var parsed archiveResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]domain.CandidateDocument, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		docs = append(docs, domain.CandidateDocument{
			ID:          hit.ID,
			Title:       hit.Source.Title,
			URL:         hit.Source.URL,
			PublishedAt: hit.Source.PublishedAt,
			BodyText:    HTMLToText(hit.Source.Body),
			SummaryText: hit.Source.Summary,
		})
	}
	return docs, nil
}

func buildArchiveQuery(q Query) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":  q.Text,
							"fields": []string{"title^3", "summary^2", "body"},
						},
					},
				},
				"filter": []any{
					map[string]any{
						"range": map[string]any{
							"published_at": map[string]any{
								"gte": q.Window.Start.Format(time.RFC3339),
								"lte": q.Window.End.Format(time.RFC3339),
							},
						},
					},
				},
			},
		},
		"sort": []any{"_score", map[string]any{"published_at": "asc"}},
	}
}
