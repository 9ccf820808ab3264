package daily

import (
	"context"
	"time"
)

// RolloverCallback is invoked after a worker run changed the daily state.
type RolloverCallback func(Result)

// StartWorker runs a background goroutine that re-checks the calendar day on
// every tick so a long-running server rolls over at midnight.
func StartWorker(ctx context.Context, r *Reconciler, interval time.Duration, onRollover RolloverCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		r.logger.Info("daily worker started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				res, err := r.Reconcile(ctx)
				if err != nil {
					r.logger.Error("daily worker reconcile failed", "error", err)
					continue
				}
				if res.Changed && onRollover != nil {
					onRollover(res)
				}
			case <-ctx.Done():
				r.logger.Info("daily worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
