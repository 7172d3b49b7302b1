package usecase

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsScout/internal/domain"
	"NewsScout/internal/fetch"
	"NewsScout/internal/rank"
	"NewsScout/internal/source"
)

type fakeStore struct {
	run         domain.Run
	topic       domain.Topic
	sources     []domain.SourceConfig
	recipients  []string
	finalized   *domain.Run
	usage       []domain.UsageRecord
	finalizeErr error
}

func (s *fakeStore) ClaimRun(_ context.Context, runID string) (domain.Run, bool, error) {
	if s.run.ID != runID {
		return domain.Run{}, false, fmt.Errorf("run %s not found", runID)
	}
	return s.run, s.run.Status == domain.RunRunning, nil
}

func (s *fakeStore) TopicForRun(context.Context, string) (domain.Topic, error) {
	return s.topic, nil
}

func (s *fakeStore) ActiveSources(context.Context, string) ([]domain.SourceConfig, error) {
	return s.sources, nil
}

func (s *fakeStore) FinalizeRun(_ context.Context, run domain.Run) error {
	if s.finalizeErr != nil {
		return s.finalizeErr
	}
	s.finalized = &run
	return nil
}

func (s *fakeStore) Recipients(context.Context, string) ([]string, error) {
	return s.recipients, nil
}

func (s *fakeStore) LogUsage(_ context.Context, record domain.UsageRecord) error {
	s.usage = append(s.usage, record)
	return nil
}

func (s *fakeStore) PendingRuns(context.Context, int) ([]string, error) {
	if s.run.Status == domain.RunRunning {
		return []string{s.run.ID}, nil
	}
	return nil, nil
}

type fakeChat struct {
	text  string
	err   error
	calls int
}

func (c *fakeChat) Chat(context.Context, string, string, string) (domain.ChatReply, error) {
	c.calls++
	if c.err != nil {
		return domain.ChatReply{}, c.err
	}
	return domain.ChatReply{Text: c.text, InputTokens: 800, OutputTokens: 120, LatencyMs: 1200}, nil
}

type fakeLedger struct{ cents int }

func (l fakeLedger) CostCents(string, int, int) int { return l.cents }

type fakeNotifier struct {
	sent    []string
	failFor map[string]bool
}

func (n *fakeNotifier) Send(_ context.Context, channelID, _, _ string) error {
	if n.failFor[channelID] {
		return fmt.Errorf("channel %s unreachable", channelID)
	}
	n.sent = append(n.sent, channelID)
	return nil
}

type feedItem struct {
	title   string
	link    string
	pubDate string
}

func feedServer(t *testing.T, items []feedItem) *httptest.Server {
	t.Helper()

	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>`)
	for _, item := range items {
		b.WriteString("<item>")
		fmt.Fprintf(&b, "<title>%s</title><link>%s</link>", item.title, item.link)
		if item.pubDate != "" {
			fmt.Fprintf(&b, "<pubDate>%s</pubDate>", item.pubDate)
		}
		b.WriteString("</item>")
	}
	b.WriteString(`</channel></rss>`)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(b.String()))
	}))
	t.Cleanup(server.Close)
	return server
}

func failingServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)
	return server
}

func rssSource(name, feedURL string) domain.SourceConfig {
	return domain.SourceConfig{Name: name, Type: domain.SourceRSS, FeedURL: feedURL, Active: true}
}

func newTestPipeline(store *fakeStore, chat *fakeChat, notifier *fakeNotifier, cents int) *Pipeline {
	return NewPipeline(PipelineDeps{
		Store:        store,
		Orchestrator: fetch.NewOrchestrator(source.Deps{Client: http.DefaultClient}, nil),
		Selector:     rank.NewSelector(chat),
		Ledger:       fakeLedger{cents: cents},
		Notifier:     notifier,
		Provider:     "openai",
	})
}

func runningStore() *fakeStore {
	return &fakeStore{
		run: domain.Run{ID: "run-1", TopicID: "topic-1", WorkspaceID: "ws-1", Status: domain.RunRunning},
		topic: domain.Topic{
			ID: "topic-1", WorkspaceID: "ws-1", Name: "AI policy",
			Description: "AI regulation news", MaxSourcesPerRun: 30, Model: "gpt-4o-mini", Active: true,
		},
	}
}

func logMessages(run *domain.Run, phase domain.RunPhase) []string {
	var messages []string
	for _, entry := range run.Logs {
		if entry.Phase == phase {
			messages = append(messages, entry.Message)
		}
	}
	return messages
}

func TestExecuteAutoSelectWithoutLLM(t *testing.T) {
	t.Parallel()

	feed := feedServer(t, []feedItem{
		{title: "Parliament drafts new AI oversight bill", link: "https://a.example/bill"},
		{title: "Startup funding hits record quarter", link: "https://b.example/funding"},
	})

	store := runningStore()
	store.sources = []domain.SourceConfig{rssSource("alpha", feed.URL)}
	store.recipients = []string{"chat-1"}
	chat := &fakeChat{}
	notifier := &fakeNotifier{}

	require.NoError(t, newTestPipeline(store, chat, notifier, 42).Execute(context.Background(), "run-1"))

	require.NotNil(t, store.finalized)
	assert.Equal(t, domain.RunDone, store.finalized.Status)
	assert.Equal(t, 0, store.finalized.CostCents, "auto-select must be free")
	assert.Zero(t, chat.calls)
	assert.Len(t, store.finalized.ResultURLs, 2)
	assert.Equal(t, []string{"chat-1"}, notifier.sent)
	assert.Empty(t, store.usage)
}

func TestExecuteCapsCandidates(t *testing.T) {
	t.Parallel()

	items := make([]feedItem, 12)
	for i := range items {
		items[i] = feedItem{
			title: fmt.Sprintf("Completely unrelated subject %d with its own distinct wording %d", i, i*31),
			link:  fmt.Sprintf("https://site-%d.example/story", i),
		}
	}
	feed := feedServer(t, items)

	store := runningStore()
	store.topic.MaxSourcesPerRun = 5
	store.sources = []domain.SourceConfig{rssSource("alpha", feed.URL)}
	chat := &fakeChat{text: "My pick is https://site-0.example/story"}
	notifier := &fakeNotifier{}

	require.NoError(t, newTestPipeline(store, chat, notifier, 3).Execute(context.Background(), "run-1"))

	require.NotNil(t, store.finalized)
	assert.Equal(t, 12, store.finalized.CandidateCount)

	capLogs := logMessages(store.finalized, domain.PhaseCap)
	require.Len(t, capLogs, 1)
	assert.Contains(t, capLogs[0], "capped")
	assert.Contains(t, capLogs[0], "5")
}

func TestExecuteSurvivesFailingSource(t *testing.T) {
	t.Parallel()

	good := feedServer(t, []feedItem{
		{title: "Central bank holds interest rate steady", link: "https://a.example/rate"},
	})
	alsoGood := feedServer(t, []feedItem{
		{title: "Chip factory opens in northern region", link: "https://b.example/chips"},
	})
	bad := failingServer(t)

	store := runningStore()
	store.sources = []domain.SourceConfig{
		rssSource("alpha", good.URL),
		rssSource("broken", bad.URL),
		rssSource("gamma", alsoGood.URL),
	}
	notifier := &fakeNotifier{}

	require.NoError(t, newTestPipeline(store, &fakeChat{}, notifier, 0).Execute(context.Background(), "run-1"))

	require.NotNil(t, store.finalized)
	assert.Equal(t, domain.RunDone, store.finalized.Status)
	assert.Len(t, store.finalized.ResultURLs, 2)

	fetchErrors := 0
	for _, msg := range logMessages(store.finalized, domain.PhaseFetch) {
		if strings.Contains(msg, "broken") {
			fetchErrors++
		}
	}
	assert.Equal(t, 1, fetchErrors, "expected one fetch-phase error for the broken source")
}

func TestExecuteFallbackExtraction(t *testing.T) {
	t.Parallel()

	feed := feedServer(t, []feedItem{
		{title: "Ministers argue over energy subsidies package", link: "https://a.example/subsidies"},
		{title: "Rail network announces decade of upgrades", link: "https://b.example/rail"},
		{title: "Volcanic eruption disrupts transatlantic flights", link: "https://c.example/volcano"},
		{title: "University consortium maps deep sea habitats", link: "https://d.example/ocean"},
	})

	store := runningStore()
	store.sources = []domain.SourceConfig{rssSource("alpha", feed.URL)}
	chat := &fakeChat{text: "My picks would be https://c.example/volcano followed by https://a.example/subsidies, enjoy!"}
	notifier := &fakeNotifier{}

	require.NoError(t, newTestPipeline(store, chat, notifier, 7).Execute(context.Background(), "run-1"))

	require.NotNil(t, store.finalized)
	assert.Equal(t, 1, chat.calls)
	require.Equal(t, []string{"https://c.example/volcano", "https://a.example/subsidies"}, store.finalized.ResultURLs)
	assert.Equal(t, 7, store.finalized.CostCents)

	require.Len(t, store.usage, 1)
	assert.Equal(t, "gpt-4o-mini", store.usage[0].Model)
	assert.Equal(t, 800, store.usage[0].InputTokens)
}

func TestExecuteRankingFailureFinalizesError(t *testing.T) {
	t.Parallel()

	feed := feedServer(t, []feedItem{
		{title: "First entirely distinct headline about shipping", link: "https://a.example/1"},
		{title: "Second story on municipal housing reforms", link: "https://b.example/2"},
		{title: "Third report covering vaccine rollout data", link: "https://c.example/3"},
		{title: "Fourth piece about wildfire containment", link: "https://d.example/4"},
	})

	store := runningStore()
	store.sources = []domain.SourceConfig{rssSource("alpha", feed.URL)}
	chat := &fakeChat{err: fmt.Errorf("provider unavailable")}

	err := newTestPipeline(store, chat, &fakeNotifier{}, 0).Execute(context.Background(), "run-1")
	require.Error(t, err)

	require.NotNil(t, store.finalized)
	assert.Equal(t, domain.RunError, store.finalized.Status)
	assert.Contains(t, store.finalized.ErrorMessage, "provider unavailable")
	assert.NotEmpty(t, logMessages(store.finalized, domain.PhaseError))
}

func TestExecuteNonRunningRunIsNoOp(t *testing.T) {
	t.Parallel()

	store := runningStore()
	store.run.Status = domain.RunDone
	notifier := &fakeNotifier{}

	require.NoError(t, newTestPipeline(store, &fakeChat{}, notifier, 0).Execute(context.Background(), "run-1"))
	assert.Nil(t, store.finalized, "terminal runs must not be reprocessed")
	assert.Empty(t, notifier.sent)
}

func TestNotifyIsolatesRecipientFailures(t *testing.T) {
	t.Parallel()

	feed := feedServer(t, []feedItem{
		{title: "Single fresh story for the digest", link: "https://a.example/story"},
	})

	store := runningStore()
	store.sources = []domain.SourceConfig{rssSource("alpha", feed.URL)}
	store.recipients = []string{"chat-1", "chat-2", "chat-3"}
	notifier := &fakeNotifier{failFor: map[string]bool{"chat-2": true}}

	require.NoError(t, newTestPipeline(store, &fakeChat{}, notifier, 0).Execute(context.Background(), "run-1"))

	require.NotNil(t, store.finalized)
	assert.Equal(t, domain.RunDone, store.finalized.Status, "delivery failure must not affect terminal status")
	assert.Equal(t, []string{"chat-1", "chat-3"}, notifier.sent)
}

func TestFinalizeFailurePropagates(t *testing.T) {
	t.Parallel()

	feed := feedServer(t, []feedItem{
		{title: "A story", link: "https://a.example/story"},
	})

	store := runningStore()
	store.sources = []domain.SourceConfig{rssSource("alpha", feed.URL)}
	store.finalizeErr = fmt.Errorf("connection reset")

	err := newTestPipeline(store, &fakeChat{}, &fakeNotifier{}, 0).Execute(context.Background(), "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestExecuteUnusableRankingReplyFinalizesError(t *testing.T) {
	t.Parallel()

	feed := feedServer(t, []feedItem{
		{title: "Harbor expansion contract awarded", link: "https://a.example/harbor"},
		{title: "Drought forces early grape harvest", link: "https://b.example/harvest"},
		{title: "New exoplanet survey results published", link: "https://c.example/space"},
		{title: "City council votes on transit overhaul", link: "https://d.example/transit"},
	})

	store := runningStore()
	store.sources = []domain.SourceConfig{rssSource("alpha", feed.URL)}
	chat := &fakeChat{text: "I cannot decide, sorry."}

	err := newTestPipeline(store, chat, &fakeNotifier{}, 0).Execute(context.Background(), "run-1")
	require.Error(t, err)

	require.NotNil(t, store.finalized)
	assert.Equal(t, domain.RunError, store.finalized.Status)
	assert.Contains(t, store.finalized.ErrorMessage, "no candidate selection")
	assert.Empty(t, store.finalized.ResultURLs)
}

func TestNoNotifyLogWithoutResults(t *testing.T) {
	t.Parallel()

	// Every candidate is older than the lookback window, so the run
	// completes with zero results and must not claim a delivery.
	feed := feedServer(t, []feedItem{
		{title: "Old story one", link: "https://a.example/1", pubDate: "Tue, 01 Sep 2020 10:00:00 +0000"},
		{title: "Old story two", link: "https://b.example/2", pubDate: "Wed, 02 Sep 2020 10:00:00 +0000"},
	})

	store := runningStore()
	store.sources = []domain.SourceConfig{rssSource("alpha", feed.URL)}
	store.recipients = []string{"chat-1"}
	notifier := &fakeNotifier{}

	require.NoError(t, newTestPipeline(store, &fakeChat{}, notifier, 0).Execute(context.Background(), "run-1"))

	require.NotNil(t, store.finalized)
	assert.Equal(t, domain.RunDone, store.finalized.Status)
	assert.Empty(t, store.finalized.ResultURLs)
	assert.Empty(t, logMessages(store.finalized, domain.PhaseNotify))
	assert.Empty(t, notifier.sent)
}

func TestFormatDigestEscapesMarkup(t *testing.T) {
	t.Parallel()

	message := formatDigest(
		domain.Topic{Name: "M&A <watch>"},
		[]domain.RankedResult{{
			URL:    "https://x.com/deal?a=1&b=2",
			Title:  "AT&T <b>merger</b> cleared",
			Reason: "biggest deal & most shared",
		}},
	)

	assert.Contains(t, message, "<b>M&amp;A &lt;watch&gt;</b>")
	assert.Contains(t, message, `<a href="https://x.com/deal?a=1&amp;b=2">AT&amp;T &lt;b&gt;merger&lt;/b&gt; cleared</a>`)
	assert.Contains(t, message, "biggest deal &amp; most shared")
	assert.NotContains(t, message, "<b>merger</b>")
}
