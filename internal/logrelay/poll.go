package logrelay

import (
	"context"
	"time"
)

// DefaultPollInterval is the drain cadence used by interactive front ends.
const DefaultPollInterval = 5 * time.Millisecond

// Poll drains the relay every interval and hands non-empty batches to fn
// until ctx is done. A final drain runs after cancellation so lines appended
// just before shutdown are still delivered. fn runs on the calling goroutine.
func (r *Relay) Poll(ctx context.Context, interval time.Duration, fn func([]Line)) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if lines := r.DrainAll(); len(lines) > 0 {
				fn(lines)
			}
			return
		case <-ticker.C:
			if lines := r.DrainAll(); len(lines) > 0 {
				fn(lines)
			}
		}
	}
}
