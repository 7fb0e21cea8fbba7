package retriever

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	infrahttp "github.com/jonesrussell/north-cloud/timeline/infrastructure/http"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

// DefaultNewsSearchURL is a Google News RSS search endpoint. %s receives the
// escaped query.
const DefaultNewsSearchURL = "https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en"

// NewsSearcher queries an RSS search endpoint and keeps items published
// inside the query window.
type NewsSearcher struct {
	urlTemplate string
	client      *http.Client
	parser      *gofeed.Parser
}

// NewNewsSearcher creates a searcher. An empty template uses
// DefaultNewsSearchURL.
func NewNewsSearcher(urlTemplate string, timeout time.Duration) *NewsSearcher {
	if urlTemplate == "" {
		urlTemplate = DefaultNewsSearchURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &NewsSearcher{
		urlTemplate: urlTemplate,
		client:      infrahttp.NewTimeoutClient(timeout),
		parser:      gofeed.NewParser(),
	}
}

// Search implements Searcher. The window is expressed with after:/before:
// operators and enforced again on the parsed items.
func (n *NewsSearcher) Search(ctx context.Context, q Query) ([]domain.CandidateDocument, error) {
	terms := fmt.Sprintf("%s after:%s before:%s",
		q.Text,
		q.Window.Start.AddDate(0, 0, -1).Format(domain.DateLayout),
		q.Window.End.AddDate(0, 0, 1).Format(domain.DateLayout),
	)
	feedURL := fmt.Sprintf(n.urlTemplate, url.QueryEscape(terms))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %d", resp.StatusCode)
	}

	feed, err := n.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	docs := make([]domain.CandidateDocument, 0, len(feed.Items))
	for _, item := range feed.Items {
		if len(docs) >= q.Limit {
			break
		}
		published := itemTime(item)
		if published.IsZero() || !q.Window.Contains(published) {
			continue
		}

		text := HTMLToText(item.Description)
		if item.Content != "" {
			text = HTMLToText(item.Content)
		}
		docs = append(docs, domain.CandidateDocument{
			ID:          strings.TrimSpace(item.GUID),
			Title:       strings.TrimSpace(item.Title),
			URL:         strings.TrimSpace(item.Link),
			PublishedAt: published.UTC(),
			BodyText:    text,
			SummaryText: HTMLToText(item.Description),
		})
	}
	return docs, nil
}

func itemTime(item *gofeed.Item) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return *item.PublishedParsed
	case item.UpdatedParsed != nil:
		return *item.UpdatedParsed
	default:
		return time.Time{}
	}
}
