package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"NewsScout/internal/domain"
	"NewsScout/internal/ports"
)

const (
	userAgent = "NewsScout/1.0"

	// fetchTimeout bounds every adapter's network calls; sources are
	// untrusted and numerous, one slow host must not stall the run.
	fetchTimeout = 8 * time.Second
)

// FetchResult is one adapter invocation's outcome. Ordinary network and
// parse failures land in Errors as strings; Articles may be empty or
// partial alongside them.
type FetchResult struct {
	Articles []domain.CandidateArticle
	Errors   []string
}

func (r *FetchResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Adapter turns one source configuration into candidate articles.
type Adapter interface {
	Fetch(ctx context.Context, topicDescription string) FetchResult
}

// Deps carries the shared collaborators adapters are built with.
type Deps struct {
	Client    *http.Client
	Validator ports.URLValidator

	// SocialConfigured is the explicit capability flag for the social
	// adapter; injected from config rather than read from the ambient
	// environment so both states are testable.
	SocialConfigured bool
}

func (d Deps) httpClient() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: fetchTimeout}
}

// ForConfig resolves the adapter variant for a source. The switch is
// closed over the domain.SourceType enum; an unknown type is a
// configuration error the caller reports per-source.
func ForConfig(cfg domain.SourceConfig, deps Deps) (Adapter, error) {
	switch cfg.Type {
	case domain.SourceRSS:
		return newRSSAdapter(cfg, deps.httpClient()), nil
	case domain.SourceTopicSearch:
		return newTopicSearchAdapter(cfg, deps.httpClient()), nil
	case domain.SourceHTML:
		return newHTMLAdapter(cfg, deps.httpClient(), deps.Validator), nil
	case domain.SourceSocial:
		return newSocialAdapter(cfg, deps.SocialConfigured), nil
	default:
		return nil, fmt.Errorf("source %s: unknown type %q", cfg.Name, cfg.Type)
	}
}
