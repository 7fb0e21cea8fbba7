package retriever

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/normalizer"
)

// Multi fans a query out to several searchers in order and merges results,
// dropping repeated URLs. It fails only when every searcher fails.
type Multi []Searcher

// Search implements Searcher.
func (m Multi) Search(ctx context.Context, q Query) ([]domain.CandidateDocument, error) {
	var (
		out  []domain.CandidateDocument
		errs []error
		seen = make(map[string]bool)
	)

	for i, s := range m {
		docs, err := s.Search(ctx, q)
		if err != nil {
			errs = append(errs, fmt.Errorf("searcher %d: %w", i, err))
			continue
		}
		for _, doc := range docs {
			key := normalizer.NormalizeURL(doc.URL)
			if key != "" && seen[key] {
				continue
			}
			if key != "" {
				seen[key] = true
			}
			out = append(out, doc)
		}
	}

	if len(errs) == len(m) && len(m) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
