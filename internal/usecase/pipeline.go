package usecase

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"NewsScout/internal/costs"
	"NewsScout/internal/dedup"
	"NewsScout/internal/domain"
	"NewsScout/internal/fetch"
	"NewsScout/internal/filter"
	"NewsScout/internal/ports"
	"NewsScout/internal/rank"
)

// notifyFormat is the parse mode passed to the notification sender.
const notifyFormat = "HTML"

// PipelineDeps wires all driven adapters into the run pipeline.
type PipelineDeps struct {
	Store        ports.RunStore
	Orchestrator *fetch.Orchestrator
	Selector     *rank.Selector
	Ledger       ports.CostLedger
	Notifier     ports.Notifier
	Logger       *slog.Logger

	// Lookback overrides the recency window; zero means the default.
	Lookback time.Duration

	// Provider names the chat backend in usage records.
	Provider string

	// ExtraPaywallURLPatterns and ExtraPaywallTitlePhrases extend the
	// built-in paywall sets per deployment.
	ExtraPaywallURLPatterns  []string
	ExtraPaywallTitlePhrases []string
}

// Pipeline executes one discovery run: claim, fetch, cap, filter,
// dedup, rank, finalize, notify.
type Pipeline struct {
	deps PipelineDeps
}

// NewPipeline constructs the run pipeline.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{deps: deps}
}

// Execute processes one run end to end. A run not in running status is
// a silent no-op. Source failures degrade to fewer candidates; ranking
// call failures and persistence failures are fatal and recorded on the
// run before propagating.
func (p *Pipeline) Execute(ctx context.Context, runID string) error {
	run, claimed, err := p.deps.Store.ClaimRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("claim run %s: %w", runID, err)
	}
	if !claimed {
		p.deps.Logger.Debug("run not claimable, skipping", "run", runID)
		return nil
	}

	logs := &domain.RunLog{}
	if err := p.process(ctx, &run, logs); err != nil {
		logs.Add(domain.PhaseError, err.Error())
		return p.finalizeError(ctx, run, logs, err)
	}
	return nil
}

func (p *Pipeline) process(ctx context.Context, run *domain.Run, logs *domain.RunLog) error {
	topic, err := p.deps.Store.TopicForRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("load topic: %w", err)
	}

	sources, err := p.deps.Store.ActiveSources(ctx, run.WorkspaceID)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	logs.Add(domain.PhaseInit, fmt.Sprintf("run started for topic %q with %d active sources", topic.Name, len(sources)))

	outcome := p.deps.Orchestrator.FetchAll(ctx, topic, sources)
	for _, sourceErr := range outcome.SourceErrors {
		logs.Add(domain.PhaseFetch, sourceErr)
	}
	logs.Add(domain.PhaseFetch, fmt.Sprintf("aggregated %d candidates", outcome.TotalFetched))
	if outcome.Capped {
		logs.Add(domain.PhaseCap, fmt.Sprintf("capped candidates from %d to %d", outcome.TotalFetched, len(outcome.Candidates)))
	}
	run.CandidateCount = outcome.TotalFetched

	survivors, removed := filter.Apply(outcome.Candidates, filter.Options{
		Lookback:          p.deps.Lookback,
		Language:          topic.Language,
		NegativeKeywords:  topic.NegativeFilters,
		ExtraURLPatterns:  p.deps.ExtraPaywallURLPatterns,
		ExtraTitlePhrases: p.deps.ExtraPaywallTitlePhrases,
	})
	logs.Add(domain.PhaseFilter, fmt.Sprintf("filtered out %d candidates, %d remain", removed, len(survivors)))

	deduped := dedup.Merge(survivors)
	logs.Add(domain.PhaseDedup, fmt.Sprintf("deduplicated %d candidates into %d stories", len(survivors), len(deduped)))

	results, usage, err := p.deps.Selector.Select(ctx, topic, deduped)
	if err != nil {
		return err
	}

	if usage == nil {
		logs.Add(domain.PhaseRank, fmt.Sprintf("selected %d results without ranking call", len(results)))
	} else {
		run.CostCents = p.deps.Ledger.CostCents(topic.Model, usage.InputTokens, usage.OutputTokens)
		logs.Add(domain.PhaseRank, fmt.Sprintf("ranked %d candidates into %d results (tokens %d/%d, %dms, %d cents)",
			len(deduped), len(results), usage.InputTokens, usage.OutputTokens, usage.LatencyMs, run.CostCents))
		p.logUsage(ctx, *run, topic, *usage, logs)
	}

	recipients, err := p.deps.Store.Recipients(ctx, run.WorkspaceID)
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}
	if len(recipients) > 0 && len(results) > 0 {
		logs.Add(domain.PhaseNotify, fmt.Sprintf("notifying %d recipients", len(recipients)))
	}

	run.Status = domain.RunDone
	run.ResultMeta = results
	run.ResultURLs = resultURLs(results)
	run.Logs = logs.Entries()
	now := time.Now().UTC()
	run.FinishedAt = &now
	if err := p.deps.Store.FinalizeRun(ctx, *run); err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}

	p.notify(ctx, topic, results, recipients)
	return nil
}

// finalizeError records the failure and the log collected so far, then
// propagates the original error. A finalize failure is reported
// alongside it since the run outcome would otherwise be lost silently.
func (p *Pipeline) finalizeError(ctx context.Context, run domain.Run, logs *domain.RunLog, cause error) error {
	run.Status = domain.RunError
	run.ErrorMessage = cause.Error()
	run.Logs = logs.Entries()
	now := time.Now().UTC()
	run.FinishedAt = &now

	if err := p.deps.Store.FinalizeRun(ctx, run); err != nil {
		return fmt.Errorf("finalize failed run: %w (run error: %s)", err, cause)
	}
	return cause
}

// logUsage pushes the structured usage record; sink failures are
// diagnostic only and never abort the run.
func (p *Pipeline) logUsage(ctx context.Context, run domain.Run, topic domain.Topic, usage domain.ChatReply, logs *domain.RunLog) {
	record := costs.NewUsageRecord(run.WorkspaceID, run.ID, p.deps.Provider, topic.Model, usage, run.CostCents)
	if err := p.deps.Store.LogUsage(ctx, record); err != nil {
		logs.Add(domain.PhaseRank, fmt.Sprintf("usage record not persisted: %v", err))
		p.deps.Logger.Warn("usage record not persisted", "run", run.ID, "error", err)
	}
}

// notify delivers the digest to each recipient; every attempt is
// isolated so one failing channel does not affect the others or the
// run's terminal status.
func (p *Pipeline) notify(ctx context.Context, topic domain.Topic, results []domain.RankedResult, recipients []string) {
	if len(results) == 0 || len(recipients) == 0 {
		return
	}

	message := formatDigest(topic, results)
	for _, channelID := range recipients {
		if err := p.deps.Notifier.Send(ctx, channelID, message, notifyFormat); err != nil {
			p.deps.Logger.Error("notification delivery failed", "channel", channelID, "error", err)
			continue
		}
		p.deps.Logger.Debug("notification delivered", "channel", channelID)
	}
}

func resultURLs(results []domain.RankedResult) []string {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		urls = append(urls, r.URL)
	}
	return urls
}

// formatDigest renders the HTML parse-mode message; headline text is
// untrusted and must be entity-escaped or Telegram rejects the send.
func formatDigest(topic domain.Topic, results []domain.RankedResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(topic.Name))

	for i, r := range results {
		fmt.Fprintf(&b, "%d. <a href=\"%s\">%s</a>\n%s\n\n",
			i+1, html.EscapeString(r.URL), html.EscapeString(r.Title), html.EscapeString(r.Reason))
	}

	return strings.TrimSpace(b.String())
}
