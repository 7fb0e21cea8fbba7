// Package retriever fetches the three candidate tiers for a date.
package retriever

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

// Query is one search request against the search collaborator.
type Query struct {
	Text   string
	Window domain.Window
	Limit  int
}

// Searcher is the search collaborator. An empty result is not an error.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]domain.CandidateDocument, error)
}

// TierQuery is the query issued for one tier.
type TierQuery struct {
	Query string `yaml:"query"`
	Limit int    `yaml:"limit"`
}

// DefaultTierLimit is used when a tier does not set Limit.
const DefaultTierLimit = 10

// Retriever issues the tier searches for a date concurrently.
type Retriever struct {
	searcher Searcher
	tiers    map[domain.Tier]TierQuery
	log      logger.Logger
	observe  func(tier domain.Tier, err error, elapsed time.Duration)
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithObserver reports each tier call, e.g. to metrics.
func WithObserver(fn func(domain.Tier, error, time.Duration)) Option {
	return func(r *Retriever) { r.observe = fn }
}

// New creates a Retriever. Tiers missing from tiers are skipped and yield
// empty lists.
func New(searcher Searcher, tiers map[domain.Tier]TierQuery, log logger.Logger, opts ...Option) *Retriever {
	r := &Retriever{
		searcher: searcher,
		tiers:    tiers,
		log:      logger.Component(log, "retriever"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RetrieveTiers searches every tier for the [00:00:00, 23:59:59] window of
// date. A tier whose search fails is returned empty; only an invalid date is
// an error. No retry happens here.
func (r *Retriever) RetrieveTiers(ctx context.Context, date string) (domain.TieredCandidates, error) {
	window, err := domain.DayWindow(date)
	if err != nil {
		return domain.TieredCandidates{}, err
	}

	results := make([][]domain.CandidateDocument, len(domain.Tiers))
	g, gctx := errgroup.WithContext(ctx)
	for i, tier := range domain.Tiers {
		tq, ok := r.tiers[tier]
		if !ok || tq.Query == "" {
			continue
		}
		g.Go(func() error {
			results[i] = r.searchTier(gctx, date, tier, tq, window)
			return nil
		})
	}
	_ = g.Wait()

	var out domain.TieredCandidates
	for i, tier := range domain.Tiers {
		out.Set(tier, results[i])
	}
	return out, nil
}

func (r *Retriever) searchTier(ctx context.Context, date string, tier domain.Tier, tq TierQuery, window domain.Window) []domain.CandidateDocument {
	limit := tq.Limit
	if limit <= 0 {
		limit = DefaultTierLimit
	}

	start := time.Now()
	docs, err := r.searcher.Search(ctx, Query{Text: tq.Query, Window: window, Limit: limit})
	if r.observe != nil {
		r.observe(tier, err, time.Since(start))
	}
	if err != nil {
		r.log.Warn("Tier search failed, continuing with empty tier",
			logger.String("date", date),
			logger.String("tier", string(tier)),
			logger.Error(err),
		)
		return []domain.CandidateDocument{}
	}

	out := make([]domain.CandidateDocument, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = documentID(doc)
		}
		doc.Tier = tier
		out = append(out, doc)
		if len(out) == limit {
			break
		}
	}

	r.log.Debug("Tier retrieved",
		logger.String("date", date),
		logger.String("tier", string(tier)),
		logger.Int("count", len(out)),
	)
	return out
}

// documentID derives a stable id for sources that do not supply one.
func documentID(doc domain.CandidateDocument) string {
	key := doc.URL
	if key == "" {
		key = doc.Title + "|" + doc.PublishedAt.UTC().Format(time.RFC3339)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}
