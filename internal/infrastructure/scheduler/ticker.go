package scheduler

import (
	"context"
	"time"

	"NewsScout/internal/ports"
)

// TickerScheduler triggers the job at a fixed interval. Kept simple on
// purpose; run creation itself happens upstream.
type TickerScheduler struct {
	interval time.Duration
	stop     chan struct{}
}

var _ ports.Scheduler = (*TickerScheduler)(nil)

// NewTickerScheduler builds a scheduler with the given sweep interval.
func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &TickerScheduler{interval: interval}
}

// Start begins ticking; the job also fires once immediately.
func (t *TickerScheduler) Start(ctx context.Context, job func(ctx context.Context)) error {
	if job == nil {
		return nil
	}
	if t.stop != nil {
		return nil
	}

	t.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		job(ctx)
		for {
			select {
			case <-ticker.C:
				job(ctx)
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine.
func (t *TickerScheduler) Stop(_ context.Context) error {
	if t.stop == nil {
		return nil
	}
	close(t.stop)
	t.stop = nil
	return nil
}
