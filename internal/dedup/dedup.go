package dedup

import (
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"NewsScout/internal/domain"
)

// similarityThreshold is the trigram Jaccard score at or above which two
// titles are treated as the same story.
const similarityThreshold = 0.85

// trackingParams are query keys stripped during canonicalization, in
// addition to any key with the utm_ prefix.
var trackingParams = map[string]struct{}{
	"ref":    {},
	"source": {},
	"fbclid": {},
	"gclid":  {},
	"mc_cid": {},
	"mc_eid": {},
}

// CanonicalURL normalizes a URL into the dedup key form: lower-cased
// host without a leading www., no fragment, tracking parameters
// removed, remaining parameters sorted, trailing slash stripped except
// for the root path. Unparseable URLs are returned unchanged.
func CanonicalURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return raw
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")
	parsed.Host = host
	parsed.Fragment = ""

	query := parsed.Query()
	for key := range query {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			query.Del(key)
			continue
		}
		if _, tracked := trackingParams[strings.ToLower(key)]; tracked {
			query.Del(key)
		}
	}
	// url.Values.Encode sorts keys, which gives the stable comparison form.
	parsed.RawQuery = query.Encode()

	if parsed.Path != "/" && strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}

	return parsed.String()
}

// TrigramSet returns the 3-character sliding-window substring set of a
// title, lower-cased and stripped of everything outside letters, digits
// and spaces (accented letters included).
func TrigramSet(text string) map[string]struct{} {
	normalized := normalizeTitle(text)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	if len(runes) < 3 {
		return map[string]struct{}{string(runes): {}}
	}

	set := make(map[string]struct{}, len(runes)-2)
	for i := 0; i <= len(runes)-3; i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}

// Similarity computes the Jaccard index of two titles' trigram sets.
func Similarity(a, b string) float64 {
	return jaccard(TrigramSet(a), TrigramSet(b))
}

func jaccard(left, right map[string]struct{}) float64 {
	if len(left) == 0 || len(right) == 0 {
		return 0
	}

	intersection := 0
	for token := range left {
		if _, ok := right[token]; ok {
			intersection++
		}
	}

	union := len(left) + len(right) - intersection
	if union <= 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func normalizeTitle(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Merge collapses candidates reporting the same story. Phase one groups
// exact canonical-URL duplicates; phase two merges cross-URL candidates
// whose title similarity reaches the threshold. Phase two is a single
// greedy left-to-right pass: a candidate already merged into an earlier
// one is never compared against later candidates, so the merge is not
// transitive. Deterministic given input order.
func Merge(candidates []domain.CandidateArticle) []domain.DedupedCandidate {
	grouped := groupByCanonicalURL(candidates)
	return mergeSimilarTitles(grouped)
}

func groupByCanonicalURL(candidates []domain.CandidateArticle) []domain.DedupedCandidate {
	index := map[string]int{}
	var groups []domain.DedupedCandidate

	for _, c := range candidates {
		key := CanonicalURL(c.URL)
		at, seen := index[key]
		if !seen {
			index[key] = len(groups)
			groups = append(groups, domain.DedupedCandidate{
				Title:       c.Title,
				URL:         c.URL,
				PublishedAt: c.PublishedAt,
				SourceCount: 1,
				SourceNames: []string{c.SourceName},
			})
			continue
		}

		group := &groups[at]
		group.PublishedAt = earliest(group.PublishedAt, c.PublishedAt)
		addSourceName(group, c.SourceName)
	}

	return groups
}

func mergeSimilarTitles(groups []domain.DedupedCandidate) []domain.DedupedCandidate {
	merged := make([]bool, len(groups))
	trigrams := make([]map[string]struct{}, len(groups))
	for i := range groups {
		trigrams[i] = TrigramSet(groups[i].Title)
	}

	for i := range groups {
		if merged[i] {
			continue
		}
		for j := i + 1; j < len(groups); j++ {
			if merged[j] {
				continue
			}
			if jaccard(trigrams[i], trigrams[j]) < similarityThreshold {
				continue
			}

			merged[j] = true
			groups[i].PublishedAt = earliest(groups[i].PublishedAt, groups[j].PublishedAt)
			for _, name := range groups[j].SourceNames {
				addSourceName(&groups[i], name)
			}
		}
	}

	result := make([]domain.DedupedCandidate, 0, len(groups))
	for i := range groups {
		if !merged[i] {
			result = append(result, groups[i])
		}
	}
	return result
}

func addSourceName(group *domain.DedupedCandidate, name string) {
	for _, existing := range group.SourceNames {
		if existing == name {
			return
		}
	}
	group.SourceNames = append(group.SourceNames, name)
	sort.Strings(group.SourceNames)
	group.SourceCount = len(group.SourceNames)
}

func earliest(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.Before(*a) {
		return b
	}
	return a
}
