package utils

import (
	"context"
	"time"
)

// StartPeriodicJob runs job every interval in a background goroutine until ctx is done.
// Failures are logged and retried on the next tick.
func StartPeriodicJob(ctx context.Context, name string, interval time.Duration, job func(ctx context.Context) error) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			// Wait first to avoid racing startup migrations
			select {
			case <-ctx.Done():
				Sugar.Infof("%s stopped", name)
				return
			case <-ticker.C:
			}
			runCtx, cancel := context.WithTimeout(ctx, interval)
			if err := job(runCtx); err != nil {
				Sugar.Errorf("%s failed: %v", name, err)
			}
			cancel()
		}
	}()
}
