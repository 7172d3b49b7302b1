package ports

import (
	"context"

	"NewsScout/internal/domain"
)

// RunStore loads run context and persists run outcomes. Implemented by
// the Postgres repository; the pipeline owns no other persistence.
type RunStore interface {
	// ClaimRun marks the run as being processed. claimed is false when
	// the run is not in running status (duplicate delivery guard).
	ClaimRun(ctx context.Context, runID string) (domain.Run, bool, error)

	// TopicForRun returns the run's topic.
	TopicForRun(ctx context.Context, runID string) (domain.Topic, error)

	// ActiveSources snapshots the workspace's active sources at the
	// moment processing begins.
	ActiveSources(ctx context.Context, workspaceID string) ([]domain.SourceConfig, error)

	// FinalizeRun writes the terminal run state exactly once.
	FinalizeRun(ctx context.Context, run domain.Run) error

	// Recipients lists distinct linked notification channel IDs for the
	// workspace.
	Recipients(ctx context.Context, workspaceID string) ([]string, error)

	// LogUsage persists one structured LLM usage record.
	LogUsage(ctx context.Context, record domain.UsageRecord) error

	// PendingRuns lists runs still in running status, oldest first.
	// Used by the scheduler; externally triggered deployments may never
	// call it.
	PendingRuns(ctx context.Context, limit int) ([]string, error)
}

// ChatProvider is a single system-instructed LLM chat call. The reply
// text is plain text and is not guaranteed to be valid JSON.
type ChatProvider interface {
	Chat(ctx context.Context, model, systemPrompt, userMessage string) (domain.ChatReply, error)
}

// Notifier delivers one formatted message to one channel. Per-call
// failures must be catchable and non-fatal to the caller.
type Notifier interface {
	Send(ctx context.Context, channelID, text, format string) error
}

// CostLedger converts token usage into integer minor currency units.
type CostLedger interface {
	CostCents(model string, inputTokens, outputTokens int) int
}

// URLValidator gates outbound fetches; returns the normalized URL to
// actually fetch or an error describing why the target is rejected.
type URLValidator interface {
	Validate(raw string) (string, error)
}

// Scheduler controls when pending runs are triggered.
type Scheduler interface {
	Start(ctx context.Context, job func(ctx context.Context)) error
	Stop(ctx context.Context) error
}
