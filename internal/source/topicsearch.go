package source

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"NewsScout/internal/domain"
)

// topicSearchAdapter queries a news aggregator's search feed with the
// topic description and parses the result as RSS. Aggregators wrap
// article links in one level of redirect indirection; when the reported
// link carries a url query parameter the adapter unwraps it.
type topicSearchAdapter struct {
	cfg    domain.SourceConfig
	client *http.Client
}

func newTopicSearchAdapter(cfg domain.SourceConfig, client *http.Client) *topicSearchAdapter {
	return &topicSearchAdapter{cfg: cfg, client: client}
}

func (a *topicSearchAdapter) Fetch(ctx context.Context, topicDescription string) FetchResult {
	searchURL, err := a.buildSearchURL(topicDescription)
	if err != nil {
		var result FetchResult
		result.addError("source %s: build search url: %v", a.cfg.Name, err)
		return result
	}

	return fetchFeed(ctx, a.client, a.cfg, searchURL, unwrapRedirect)
}

func (a *topicSearchAdapter) buildSearchURL(topicDescription string) (string, error) {
	base := a.cfg.BaseURL
	if strings.TrimSpace(base) == "" {
		base = "https://news.google.com/rss/search"
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	query := parsed.Query()
	query.Set("q", strings.TrimSpace(topicDescription))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// unwrapRedirect peels one level of aggregator indirection by preferring
// an absolute url query parameter over the wrapping link.
func unwrapRedirect(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return link
	}

	target := parsed.Query().Get("url")
	if target == "" {
		return link
	}
	if inner, err := url.Parse(target); err != nil || !inner.IsAbs() {
		return link
	}
	return target
}
