package authshield

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaintenanceReport summarizes one [Engine.RunMaintenance] pass.
type MaintenanceReport struct {
	TokensCleaned int64 `json:"tokensCleaned"`
	EventsDeleted int64 `json:"eventsDeleted"`
	BucketsSwept  int   `json:"bucketsSwept"`
}

// RunMaintenance clears expired tokens, deletes security events older than
// the retention period and sweeps empty rate-limit buckets. The three
// tasks run concurrently; the first error is returned alongside whatever
// the other tasks completed.
func (e *Engine) RunMaintenance(ctx context.Context) (MaintenanceReport, error) {
	var report MaintenanceReport
	if e == nil {
		return report, ErrEngineNotReady
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := e.tokens.CleanupExpired(gctx)
		report.TokensCleaned = n
		if err != nil {
			return fmt.Errorf("token cleanup: %w", err)
		}
		return nil
	})

	if log := e.events.Log(); log != nil && e.config.Events.Retention > 0 {
		before := e.now().Add(-e.config.Events.Retention)
		g.Go(func() error {
			n, err := log.DeleteBefore(gctx, before)
			report.EventsDeleted = n
			if err != nil {
				return fmt.Errorf("event retention: %w", err)
			}
			return nil
		})
	}

	if e.limiters != nil {
		g.Go(func() error {
			n, err := e.limiters.Sweep(gctx)
			report.BucketsSwept = n
			if err != nil {
				return fmt.Errorf("rate limit sweep: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		e.logger.Warn("maintenance incomplete", zap.Error(err))
	} else {
		e.logger.Debug("maintenance complete",
			zap.Int64("tokens_cleaned", report.TokensCleaned),
			zap.Int64("events_deleted", report.EventsDeleted),
			zap.Int("buckets_swept", report.BucketsSwept),
		)
	}
	return report, err
}
