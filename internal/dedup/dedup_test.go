package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsScout/internal/domain"
)

func TestCanonicalURLIdempotent(t *testing.T) {
	t.Parallel()

	urls := []string{
		"https://WWW.Example.com/a/b/?utm_source=x&id=1#frag",
		"http://example.com/",
		"https://news.site.org/story?fbclid=abc&b=2&a=1",
		"not a url at all",
	}

	for _, u := range urls {
		once := CanonicalURL(u)
		twice := CanonicalURL(once)
		assert.Equal(t, once, twice, "canonicalize not idempotent for %q", u)
	}
}

func TestCanonicalURLStripsTracking(t *testing.T) {
	t.Parallel()

	left := CanonicalURL("https://X.com/a?utm_source=x&id=1")
	right := CanonicalURL("https://x.com/a?id=1")
	assert.Equal(t, right, left)

	stripped := CanonicalURL("https://www.x.com/a/?utm_campaign=c&ref=tw&gclid=g&fbclid=f&mc_cid=m&mc_eid=e&id=1#top")
	assert.Equal(t, "https://x.com/a?id=1", stripped)
}

func TestCanonicalURLKeepsRootSlash(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://x.com/", CanonicalURL("https://www.x.com/"))
	assert.Equal(t, "https://x.com/a", CanonicalURL("https://x.com/a/"))
}

func TestSimilaritySymmetric(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"Regeringen fremlægger ny klimaplan", "Ny klimaplan fremlagt af regeringen"},
		{"short", "another title entirely"},
		{"", "nonempty"},
	}

	for _, p := range pairs {
		assert.InDelta(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), 1e-12)
	}
}

func TestSimilarityAccentedLetters(t *testing.T) {
	t.Parallel()

	// Accented letters count as letters, not separators.
	sim := Similarity("Søren Kierkegaard fylder rundt", "Søren Kierkegaard fylder rundt!")
	assert.Equal(t, 1.0, sim)
}

func ts(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return &parsed
}

func TestMergeExactURLGroup(t *testing.T) {
	t.Parallel()

	candidates := []domain.CandidateArticle{
		{Title: "Story A", URL: "https://www.x.com/a?utm_source=rss", PublishedAt: ts(t, "2026-08-28T10:00:00Z"), SourceName: "alpha"},
		{Title: "Story A again", URL: "https://x.com/a", PublishedAt: ts(t, "2026-08-28T08:00:00Z"), SourceName: "beta"},
	}

	merged := Merge(candidates)
	require.Len(t, merged, 1)
	assert.Equal(t, "Story A", merged[0].Title)
	assert.Equal(t, 2, merged[0].SourceCount)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, merged[0].SourceNames)
	assert.Equal(t, *ts(t, "2026-08-28T08:00:00Z"), *merged[0].PublishedAt)
}

func TestMergeSimilarTitlesAcrossURLs(t *testing.T) {
	t.Parallel()

	// Two sources report the same story under different URLs and
	// near-identical titles.
	candidates := []domain.CandidateArticle{
		{Title: "Government unveils sweeping new climate plan for 2030", URL: "https://a.com/1", SourceName: "alpha"},
		{Title: "Government unveils sweeping new climate plan for 2030.", URL: "https://b.com/2", SourceName: "beta"},
	}

	merged := Merge(candidates)
	require.Len(t, merged, 1)
	assert.Equal(t, 2, merged[0].SourceCount)
	assert.Equal(t, "https://a.com/1", merged[0].URL)
}

func TestMergeIsGreedyNotTransitive(t *testing.T) {
	t.Parallel()

	// B merges into A; C would have merged with B but is not compared
	// against it once B is gone, and stays separate if C vs A is below
	// the threshold. Constructed so sim(A,B) ≥ .85, sim(A,C) < .85.
	a := "breaking new climate accord signed in paris today"
	b := "breaking new climate accord signed in paris today!!"
	c := "update climate accord signed in paris today by leaders from many nations"

	require.GreaterOrEqual(t, Similarity(a, b), 0.85)
	require.Less(t, Similarity(a, c), 0.85)

	merged := Merge([]domain.CandidateArticle{
		{Title: a, URL: "https://a.com/1", SourceName: "s1"},
		{Title: b, URL: "https://b.com/2", SourceName: "s2"},
		{Title: c, URL: "https://c.com/3", SourceName: "s3"},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, 2, merged[0].SourceCount)
	assert.Equal(t, 1, merged[1].SourceCount)
}

func TestMergePreservesAllSourceNames(t *testing.T) {
	t.Parallel()

	var candidates []domain.CandidateArticle
	want := map[string]struct{}{}
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("source-%d", i)
		want[name] = struct{}{}
		candidates = append(candidates, domain.CandidateArticle{
			Title:      fmt.Sprintf("completely distinct headline number %d about unrelated subject %d", i, i*17),
			URL:        fmt.Sprintf("https://site-%d.com/story", i%4),
			SourceName: name,
		})
	}

	merged := Merge(candidates)
	assert.LessOrEqual(t, len(merged), len(candidates))

	got := map[string]struct{}{}
	for _, m := range merged {
		assert.Equal(t, len(m.SourceNames), m.SourceCount)
		for _, name := range m.SourceNames {
			got[name] = struct{}{}
		}
	}
	assert.Equal(t, want, got)
}
