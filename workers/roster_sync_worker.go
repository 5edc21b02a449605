package workers

import (
	"context"
	"time"

	"pokecare/services"

	"go.uber.org/zap"
)

// RosterSource yields the live engines to reconcile and drops idle ones.
type RosterSource interface {
	Each(fn func(userID string, engine *services.TeamEngine))
	EvictIdle(maxIdle time.Duration) int
}

// PollRosters reloads every live roster from the store on each tick, turning
// pending optimistic entries into confirmed ones. Sessions idle for longer
// than idleTimeout are ended first; zero keeps them forever.
func PollRosters(ctx context.Context, source RosterSource, pollInterval, idleTimeout time.Duration, logger *zap.Logger) {
	logger.Info("🔁 [ROSTER_SYNC] starting roster reconcile",
		zap.Duration("interval", pollInterval), zap.Duration("idle_timeout", idleTimeout))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("⏹️ [ROSTER_SYNC] roster reconcile stopped")
			return
		case <-ticker.C:
			if idleTimeout > 0 {
				source.EvictIdle(idleTimeout)
			}
			reconcileRosters(ctx, source, logger)
		}
	}
}

func reconcileRosters(ctx context.Context, source RosterSource, logger *zap.Logger) {
	count := 0
	source.Each(func(userID string, engine *services.TeamEngine) {
		if ctx.Err() != nil {
			return
		}
		engine.LoadRoster(ctx)
		count++
	})
	if count > 0 {
		logger.Debug("[ROSTER_SYNC] reconciled rosters", zap.Int("sessions", count))
	}
}
