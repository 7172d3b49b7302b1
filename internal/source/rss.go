package source

import (
	"context"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"NewsScout/internal/domain"
)

// titlePolicy strips any markup feeds smuggle into titles.
var titlePolicy = bluemonday.StrictPolicy()

// rssAdapter fetches and parses one RSS or Atom feed. gofeed handles
// the tolerant parts: CDATA unwrapping, pubDate vs updated/published,
// loosely formed XML.
type rssAdapter struct {
	cfg    domain.SourceConfig
	client *http.Client
}

func newRSSAdapter(cfg domain.SourceConfig, client *http.Client) *rssAdapter {
	return &rssAdapter{cfg: cfg, client: client}
}

func (a *rssAdapter) Fetch(ctx context.Context, _ string) FetchResult {
	return fetchFeed(ctx, a.client, a.cfg, a.cfg.FeedURL, nil)
}

// fetchFeed is shared between the rss and topic_search adapters;
// rewriteLink lets the latter unwrap aggregator redirect indirection.
func fetchFeed(ctx context.Context, client *http.Client, cfg domain.SourceConfig, feedURL string, rewriteLink func(string) string) FetchResult {
	var result FetchResult

	if strings.TrimSpace(feedURL) == "" {
		result.addError("source %s: empty feed url", cfg.Name)
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent

	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		result.addError("source %s: fetch feed: %v", cfg.Name, err)
		return result
	}

	for _, item := range feed.Items {
		title := cleanTitle(item.Title)
		link := strings.TrimSpace(item.Link)
		if title == "" || link == "" {
			continue
		}
		if rewriteLink != nil {
			link = rewriteLink(link)
		}

		result.Articles = append(result.Articles, domain.CandidateArticle{
			Title:       title,
			URL:         link,
			PublishedAt: itemTimestamp(item),
			SourceName:  cfg.Name,
			SourceType:  cfg.Type,
		})
	}

	return result
}

func cleanTitle(raw string) string {
	sanitized := titlePolicy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(sanitized))
}

func itemTimestamp(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	return item.UpdatedParsed
}
