package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"NewsScout/internal/domain"
	"NewsScout/internal/source"
)

// Outcome aggregates one fan-out pass over a run's active sources.
type Outcome struct {
	Candidates []domain.CandidateArticle

	// SourceErrors holds every non-fatal source-scoped failure, already
	// tagged with the offending source name.
	SourceErrors []string

	// TotalFetched is the aggregate candidate count before the cap.
	TotalFetched int

	// Capped reports whether the aggregate was truncated to the topic
	// cap.
	Capped bool
}

// Orchestrator dispatches all adapters for a run concurrently and joins
// on every outcome; one hung or failing source never prevents the
// others from completing or reporting.
type Orchestrator struct {
	deps   source.Deps
	logger *slog.Logger
}

// NewOrchestrator wires adapter dependencies.
func NewOrchestrator(deps source.Deps, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{deps: deps, logger: logger}
}

type sourceOutcome struct {
	result    source.FetchResult
	rejection error
}

// FetchAll runs every active source adapter concurrently, collects
// candidates and per-source errors, then truncates the aggregate to the
// topic cap (prefix truncation, order as received).
func (o *Orchestrator) FetchAll(ctx context.Context, topic domain.Topic, sources []domain.SourceConfig) Outcome {
	outcomes := make([]sourceOutcome, len(sources))

	var wg sync.WaitGroup
	for i, cfg := range sources {
		adapter, err := source.ForConfig(cfg, o.deps)
		if err != nil {
			outcomes[i] = sourceOutcome{rejection: err}
			continue
		}

		wg.Add(1)
		go func(i int, adapter source.Adapter) {
			defer wg.Done()
			outcomes[i] = sourceOutcome{result: adapter.Fetch(ctx, topic.Description)}
		}(i, adapter)
	}
	wg.Wait()

	var out Outcome
	for i, oc := range outcomes {
		if oc.rejection != nil {
			out.SourceErrors = append(out.SourceErrors,
				fmt.Sprintf("source %s rejected: %v", sources[i].Name, oc.rejection))
			continue
		}
		out.Candidates = append(out.Candidates, oc.result.Articles...)
		out.SourceErrors = append(out.SourceErrors, oc.result.Errors...)

		o.logger.Debug("source fetched",
			"source", sources[i].Name,
			"articles", len(oc.result.Articles),
			"errors", len(oc.result.Errors))
	}

	out.TotalFetched = len(out.Candidates)
	if topic.MaxSourcesPerRun > 0 && out.TotalFetched > topic.MaxSourcesPerRun {
		out.Candidates = out.Candidates[:topic.MaxSourcesPerRun]
		out.Capped = true
	}

	return out
}
