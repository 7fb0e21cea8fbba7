package bootstrap

import (
	"context"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"

	infraes "github.com/jonesrussell/north-cloud/timeline/infrastructure/elasticsearch"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/config"
	"github.com/jonesrussell/north-cloud/timeline/internal/retriever"
	"github.com/jonesrussell/north-cloud/timeline/internal/telemetry"
)

// setupRetriever builds the enabled searchers and the tiered retriever over
// them. The Elasticsearch client is returned for health checks and is nil
// when the archive is disabled.
func setupRetriever(
	ctx context.Context,
	cfg *config.Config,
	tel *telemetry.Provider,
	log logger.Logger,
) (*retriever.Retriever, *es.Client, error) {
	var (
		searchers retriever.Multi
		esClient  *es.Client
	)

	if cfg.Retriever.Archive.Enabled {
		client, err := infraes.NewClient(ctx, infraes.Config{
			URL:      cfg.Elasticsearch.URL,
			Username: cfg.Elasticsearch.Username,
			Password: cfg.Elasticsearch.Password,
			APIKey:   cfg.Elasticsearch.APIKey,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to archive: %w", err)
		}
		esClient = client
		searchers = append(searchers, retriever.NewArchiveSearcher(client, cfg.Elasticsearch.Index))
		log.Info("Archive searcher enabled", logger.String("index", cfg.Elasticsearch.Index))
	}

	if cfg.Retriever.News.Enabled {
		searchers = append(searchers, retriever.NewNewsSearcher(cfg.Retriever.News.URLTemplate, cfg.Retriever.News.Timeout))
		log.Info("News searcher enabled")
	}

	r := retriever.New(searchers, cfg.Retriever.Tiers, log, retriever.WithObserver(tel.ObserveTier))
	return r, esClient, nil
}
