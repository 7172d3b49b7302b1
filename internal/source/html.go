package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsScout/internal/domain"
	"NewsScout/internal/ports"
)

// maxHTMLItems bounds extraction per source so a pathological page
// cannot flood the run.
const maxHTMLItems = 20

var htmlDateLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// htmlAdapter scrapes a generic listing page using config-provided
// selectors. The target URL passes the anti-SSRF validator before any
// network call.
type htmlAdapter struct {
	cfg       domain.SourceConfig
	client    *http.Client
	validator ports.URLValidator
}

func newHTMLAdapter(cfg domain.SourceConfig, client *http.Client, validator ports.URLValidator) *htmlAdapter {
	return &htmlAdapter{cfg: cfg, client: client, validator: validator}
}

func (a *htmlAdapter) Fetch(ctx context.Context, _ string) FetchResult {
	var result FetchResult

	if a.cfg.Selectors.Item == "" || a.cfg.Selectors.Title == "" || a.cfg.Selectors.Link == "" {
		result.addError("source %s: html selectors incomplete", a.cfg.Name)
		return result
	}
	if a.validator == nil {
		result.addError("source %s: url validator not configured", a.cfg.Name)
		return result
	}

	target, err := a.validator.Validate(a.cfg.BaseURL)
	if err != nil {
		result.addError("source %s: url rejected: %v", a.cfg.Name, err)
		return result
	}

	doc, pageURL, err := a.fetchDocument(ctx, target)
	if err != nil {
		result.addError("source %s: %v", a.cfg.Name, err)
		return result
	}

	doc.Find(a.cfg.Selectors.Item).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if len(result.Articles) >= maxHTMLItems {
			return false
		}

		title := cleanTitle(item.Find(a.cfg.Selectors.Title).First().Text())
		href, _ := item.Find(a.cfg.Selectors.Link).First().Attr("href")
		href = strings.TrimSpace(href)
		if title == "" || href == "" {
			return true
		}

		absolute, err := resolveHref(pageURL, href)
		if err != nil {
			return true
		}

		result.Articles = append(result.Articles, domain.CandidateArticle{
			Title:       title,
			URL:         absolute,
			PublishedAt: a.itemDate(item),
			SourceName:  a.cfg.Name,
			SourceType:  a.cfg.Type,
		})
		return true
	})

	return result
}

func (a *htmlAdapter) fetchDocument(ctx context.Context, target string) (*goquery.Document, *url.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse page: %w", err)
	}

	return doc, resp.Request.URL, nil
}

func (a *htmlAdapter) itemDate(item *goquery.Selection) *time.Time {
	if a.cfg.Selectors.Date == "" {
		return nil
	}

	node := item.Find(a.cfg.Selectors.Date).First()
	raw := strings.TrimSpace(node.AttrOr("datetime", ""))
	if raw == "" {
		raw = strings.TrimSpace(node.Text())
	}
	if raw == "" {
		return nil
	}

	for _, layout := range htmlDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed
		}
	}
	return nil
}

func resolveHref(page *url.URL, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return page.ResolveReference(ref).String(), nil
}
