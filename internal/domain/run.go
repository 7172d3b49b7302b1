package domain

import (
	"time"
)

// Topic is the natural-language subject a run discovers news for.
type Topic struct {
	ID               string
	WorkspaceID      string
	Name             string
	Description      string
	Language         string
	NegativeFilters  []string
	MaxSourcesPerRun int
	Model            string
	Active           bool
}

// RankedResult is one of at most three final selections.
type RankedResult struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// RunStatus tracks the single running -> done|error transition.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunError   RunStatus = "error"
)

// RunPhase tags run log entries with the pipeline stage that wrote them.
type RunPhase string

const (
	PhaseInit   RunPhase = "init"
	PhaseFetch  RunPhase = "fetch"
	PhaseCap    RunPhase = "cap"
	PhaseFilter RunPhase = "filter"
	PhaseDedup  RunPhase = "dedup"
	PhaseRank   RunPhase = "rank"
	PhaseNotify RunPhase = "notify"
	PhaseError  RunPhase = "error"
)

// RunLogEntry is one line of the append-only diagnostic trail.
type RunLogEntry struct {
	Timestamp time.Time `json:"ts"`
	Phase     RunPhase  `json:"phase"`
	Message   string    `json:"message"`
}

// RunLog accumulates entries in memory through a run and is flushed at
// finalize time.
type RunLog struct {
	entries []RunLogEntry
}

// Add appends one entry stamped with the current time.
func (l *RunLog) Add(phase RunPhase, message string) {
	l.entries = append(l.entries, RunLogEntry{
		Timestamp: time.Now().UTC(),
		Phase:     phase,
		Message:   message,
	})
}

// Entries returns the ordered log lines collected so far.
func (l *RunLog) Entries() []RunLogEntry {
	return l.entries
}

// Run is one end-to-end pipeline execution for one topic.
type Run struct {
	ID             string
	TopicID        string
	WorkspaceID    string
	Status         RunStatus
	ResultURLs     []string
	ResultMeta     []RankedResult
	Logs           []RunLogEntry
	CostCents      int
	CandidateCount int
	StartedAt      time.Time
	FinishedAt     *time.Time
	ErrorMessage   string
}

// UsageRecord is one structured LLM usage entry for the cost ledger sink.
type UsageRecord struct {
	ID           string
	WorkspaceID  string
	RunID        string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	CostCents    int
	CreatedAt    time.Time
}

// ChatReply is the raw outcome of a single LLM chat call.
type ChatReply struct {
	Text         string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
}
