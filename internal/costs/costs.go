package costs

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"NewsScout/internal/domain"
)

// modelPrice holds prices in cents per million tokens.
type modelPrice struct {
	inputCents  int
	outputCents int
}

// Prices for the models the ranker is expected to run on. Unknown
// models fall back to the default entry so cost is never silently zero.
var prices = map[string]modelPrice{
	"gpt-4o":       {inputCents: 250, outputCents: 1000},
	"gpt-4o-mini":  {inputCents: 15, outputCents: 60},
	"gpt-4.1":      {inputCents: 200, outputCents: 800},
	"gpt-4.1-mini": {inputCents: 40, outputCents: 160},
	"o4-mini":      {inputCents: 110, outputCents: 440},
	"default":      {inputCents: 100, outputCents: 400},
}

// Ledger converts token usage into minor currency units.
type Ledger struct{}

// NewLedger builds the static price table ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// CostCents returns the integer cost of a call, rounded up so no call
// is ever accounted as free.
func (l *Ledger) CostCents(model string, inputTokens, outputTokens int) int {
	price, ok := prices[strings.ToLower(strings.TrimSpace(model))]
	if !ok {
		price = prices["default"]
	}

	const million = 1_000_000
	total := inputTokens*price.inputCents + outputTokens*price.outputCents
	cents := total / million
	if total%million != 0 {
		cents++
	}
	return cents
}

// NewUsageRecord assembles the structured usage entry persisted per run.
func NewUsageRecord(workspaceID, runID, provider, model string, reply domain.ChatReply, costCents int) domain.UsageRecord {
	return domain.UsageRecord{
		ID:           uuid.NewString(),
		WorkspaceID:  workspaceID,
		RunID:        runID,
		Provider:     provider,
		Model:        model,
		InputTokens:  reply.InputTokens,
		OutputTokens: reply.OutputTokens,
		LatencyMs:    reply.LatencyMs,
		CostCents:    costCents,
		CreatedAt:    time.Now().UTC(),
	}
}
