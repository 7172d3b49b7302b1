package filter

import (
	"strings"
	"time"

	"NewsScout/internal/domain"
)

// DefaultLookback is the recency window applied when the config gives
// none.
const DefaultLookback = 24 * time.Hour

// paywallURLPatterns flags subscriber-only content by URL substring.
var paywallURLPatterns = []string{
	"/premium/",
	"/plus/",
	"/abo/",
	"/subscriber",
	"paywall",
	"registration-required",
}

// paywallTitlePhrases flags subscriber-only content by title phrase,
// keyed by language. English is always checked alongside the topic's
// working language.
var paywallTitlePhrases = map[string][]string{
	"en": {
		"subscribers only",
		"for subscribers",
		"premium content",
		"sign in to read",
		"subscription required",
	},
	"da": {
		"kun for abonnenter",
		"abonnenter kan læse",
		"kræver abonnement",
	},
	"de": {
		"nur für abonnenten",
		"exklusiv für abonnenten",
	},
}

// Options parameterizes one filter pass.
type Options struct {
	Now               time.Time
	Lookback          time.Duration
	Language          string
	NegativeKeywords  []string
	ExtraURLPatterns  []string
	ExtraTitlePhrases []string
}

// Apply runs the predicate pipeline over candidates in fixed order:
// recency, paywall URL patterns, paywall title phrases, topic negative
// keywords. An article is dropped at the first predicate it fails.
// Returns survivors plus the removed count.
func Apply(candidates []domain.CandidateArticle, opts Options) ([]domain.CandidateArticle, int) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	cutoff := opts.Now.Add(-opts.Lookback)

	phrases := titlePhrases(opts.Language)
	phrases = append(phrases, opts.ExtraTitlePhrases...)
	urlPatterns := append(append([]string{}, paywallURLPatterns...), opts.ExtraURLPatterns...)

	kept := make([]domain.CandidateArticle, 0, len(candidates))
	for _, c := range candidates {
		if stale(c, cutoff) {
			continue
		}
		if matchesAny(strings.ToLower(c.URL), urlPatterns) {
			continue
		}
		title := strings.ToLower(c.Title)
		if matchesAny(title, phrases) {
			continue
		}
		if matchesKeywords(title, opts.NegativeKeywords) {
			continue
		}
		kept = append(kept, c)
	}

	return kept, len(candidates) - len(kept)
}

// stale drops articles at or past the cutoff; unknown publish times are
// kept since staleness cannot be assumed.
func stale(c domain.CandidateArticle, cutoff time.Time) bool {
	if c.PublishedAt == nil {
		return false
	}
	return !c.PublishedAt.After(cutoff)
}

func titlePhrases(language string) []string {
	phrases := append([]string{}, paywallTitlePhrases["en"]...)
	lang := strings.ToLower(strings.TrimSpace(language))
	if lang != "" && lang != "en" {
		phrases = append(phrases, paywallTitlePhrases[lang]...)
	}
	return phrases
}

func matchesAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func matchesKeywords(title string, keywords []string) bool {
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if strings.Contains(title, k) {
			return true
		}
	}
	return false
}
