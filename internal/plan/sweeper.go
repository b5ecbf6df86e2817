package plan

import (
	"context"
	"log/slog"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

// SweepCallback is called after a sweep removes at least one plan.
type SweepCallback func(removed, remaining int)

// StartSweeper runs a background goroutine that periodically evicts expired
// pending plans. It does nothing when the registry has no TTL.
func StartSweeper(ctx context.Context, reg *Registry, interval time.Duration, onSweep SweepCallback) {
	if reg.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Plan sweeper started", "interval", interval, "ttl", reg.ttl)

		for {
			select {
			case <-ticker.C:
				removed := reg.Sweep()
				if removed == 0 {
					continue
				}
				remaining := reg.Len()
				slog.Info("Plan sweeper evicted expired plans", "removed", removed, "remaining", remaining)
				if onSweep != nil {
					onSweep(removed, remaining)
				}
			case <-ctx.Done():
				slog.Info("Plan sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
