package domain

import "time"

// SourceType enumerates the closed set of adapter variants.
type SourceType string

const (
	SourceRSS         SourceType = "rss"
	SourceTopicSearch SourceType = "topic_search"
	SourceHTML        SourceType = "html"
	SourceSocial      SourceType = "social"
)

// HTMLSelectors describes how to pull list items out of a scraped page.
type HTMLSelectors struct {
	Item  string
	Title string
	Link  string
	Date  string
}

// SourceConfig is one configured content source owned by a workspace.
// Mutated only through external configuration management.
type SourceConfig struct {
	ID          string
	WorkspaceID string
	Name        string
	Type        SourceType
	FeedURL     string
	BaseURL     string
	Selectors   HTMLSelectors
	Active      bool
}

// CandidateArticle is one article as reported by a single adapter
// invocation. Immutable once created; lives only for one run.
type CandidateArticle struct {
	Title       string
	URL         string
	PublishedAt *time.Time
	SourceName  string
	SourceType  SourceType
}

// DedupedCandidate represents possibly many source reports of the same
// story. Invariant: SourceCount == len(SourceNames).
type DedupedCandidate struct {
	Title       string
	URL         string
	PublishedAt *time.Time
	SourceCount int
	SourceNames []string
}
