package source

import (
	"context"

	"NewsScout/internal/domain"
)

// socialAdapter keeps the per-type dispatch total while the social
// integration is stubbed. It reports its state through the error list
// like any other non-fatal source condition.
type socialAdapter struct {
	cfg        domain.SourceConfig
	configured bool
}

func newSocialAdapter(cfg domain.SourceConfig, configured bool) *socialAdapter {
	return &socialAdapter{cfg: cfg, configured: configured}
}

func (a *socialAdapter) Fetch(_ context.Context, _ string) FetchResult {
	var result FetchResult
	if !a.configured {
		result.addError("source %s: social credential not configured", a.cfg.Name)
		return result
	}
	result.addError("source %s: social fetch not implemented", a.cfg.Name)
	return result
}
