package rank

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"NewsScout/internal/dedup"
	"NewsScout/internal/domain"
	"NewsScout/internal/ports"
)

// MaxResults is the hard cap on selections per run.
const MaxResults = 3

const (
	autoSelectReason  = "auto-selected (≤3 candidates)"
	fallbackReason    = "selected by LLM (parsed from text)"
	systemInstruction = `You are a news editor selecting articles for a topic digest.
From the numbered candidate list pick exactly 3 articles, ranked by importance, reading potential and shareability. The 3 picks must cover distinct aspects of the topic (mandatory topical diversity). Exclude sponsored content, listicles and clickbait.
Respond with strict JSON only, no prose, in the shape:
{"results":[{"url":"...","title":"...","reason":"..."},{"url":"...","title":"...","reason":"..."},{"url":"...","title":"...","reason":"..."}]}`
)

var (
	urlExpr   = regexp.MustCompile(`https?://[^\s\)\]\}>"'` + "`" + `]+`)
	fenceExpr = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
)

// Selector picks at most three ranked results out of the deduped
// candidate set, calling the LLM only when there is a real choice to
// make.
type Selector struct {
	chat ports.ChatProvider
}

// NewSelector wires the chat provider.
func NewSelector(chat ports.ChatProvider) *Selector {
	return &Selector{chat: chat}
}

// Select returns the ranked results plus the chat usage of the LLM call
// (nil when the call was skipped). A chat transport failure is returned
// as an error; an unparseable reply degrades through the text fallback
// first, and only a reply the fallback also cannot rescue is fatal.
func (s *Selector) Select(ctx context.Context, topic domain.Topic, candidates []domain.DedupedCandidate) ([]domain.RankedResult, *domain.ChatReply, error) {
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	if len(candidates) <= MaxResults {
		results := make([]domain.RankedResult, 0, len(candidates))
		for _, c := range candidates {
			results = append(results, domain.RankedResult{
				URL:    c.URL,
				Title:  c.Title,
				Reason: autoSelectReason,
			})
		}
		return results, nil, nil
	}

	if s.chat == nil {
		return nil, nil, fmt.Errorf("chat provider not configured")
	}

	reply, err := s.chat.Chat(ctx, topic.Model, systemInstruction, BuildPrompt(topic, candidates))
	if err != nil {
		return nil, nil, fmt.Errorf("llm ranking call: %w", err)
	}

	results := ParseResponse(reply.Text, candidates)
	if len(results) == 0 {
		return nil, &reply, fmt.Errorf("llm reply contains no candidate selection")
	}
	return results, &reply, nil
}

// BuildPrompt renders the numbered candidate listing sent as the user
// message.
func BuildPrompt(topic domain.Topic, candidates []domain.DedupedCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n%s\n\nCandidates:\n", topic.Name, topic.Description)

	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n   Sources: %d (%s)\n   Published: %s\n",
			i+1, c.Title, c.URL, c.SourceCount, strings.Join(c.SourceNames, ", "), timeAgo(c.PublishedAt))
	}

	fmt.Fprintf(&b, "\nSelect the %d best articles.", MaxResults)
	return b.String()
}

// ParseResponse decodes the model reply defensively. It first attempts
// the strict JSON shape (unwrapping one markdown code fence if
// present); on failure it scans the raw text for URL-looking substrings
// and keeps the first distinct matches against the candidate set, in
// appearance order. Either way the output contains only candidate URLs
// and at most MaxResults entries.
func ParseResponse(text string, candidates []domain.DedupedCandidate) []domain.RankedResult {
	known := knownURLs(candidates)

	if results, ok := parseStrict(text, known); ok {
		return results
	}
	return extractFromText(text, known)
}

type rankedPayload struct {
	Results []domain.RankedResult `json:"results"`
}

func parseStrict(text string, known map[string]domain.DedupedCandidate) ([]domain.RankedResult, bool) {
	trimmed := strings.TrimSpace(text)
	if m := fenceExpr.FindStringSubmatch(trimmed); m != nil {
		trimmed = m[1]
	}

	var payload rankedPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, false
	}
	if len(payload.Results) == 0 {
		return nil, false
	}

	var results []domain.RankedResult
	seen := map[string]struct{}{}
	for _, r := range payload.Results {
		candidate, ok := lookupCandidate(known, r.URL)
		if !ok {
			continue
		}
		key := dedup.CanonicalURL(candidate.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if r.Title == "" {
			r.Title = candidate.Title
		}
		r.URL = candidate.URL
		results = append(results, r)
		if len(results) == MaxResults {
			break
		}
	}

	if len(results) == 0 {
		return nil, false
	}
	return results, true
}

func extractFromText(text string, known map[string]domain.DedupedCandidate) []domain.RankedResult {
	var results []domain.RankedResult
	seen := map[string]struct{}{}

	for _, match := range urlExpr.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;")
		candidate, ok := lookupCandidate(known, match)
		if !ok {
			continue
		}
		key := dedup.CanonicalURL(candidate.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		results = append(results, domain.RankedResult{
			URL:    candidate.URL,
			Title:  candidate.Title,
			Reason: fallbackReason,
		})
		if len(results) == MaxResults {
			break
		}
	}

	return results
}

// knownURLs indexes candidates by both their original and canonical URL
// so the model may answer with either form.
func knownURLs(candidates []domain.DedupedCandidate) map[string]domain.DedupedCandidate {
	known := make(map[string]domain.DedupedCandidate, len(candidates)*2)
	for _, c := range candidates {
		known[c.URL] = c
		known[dedup.CanonicalURL(c.URL)] = c
	}
	return known
}

func lookupCandidate(known map[string]domain.DedupedCandidate, raw string) (domain.DedupedCandidate, bool) {
	if c, ok := known[raw]; ok {
		return c, true
	}
	c, ok := known[dedup.CanonicalURL(raw)]
	return c, ok
}

func timeAgo(published *time.Time) string {
	if published == nil {
		return "unknown"
	}

	elapsed := time.Since(*published)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(elapsed.Hours()/24))
	}
}
