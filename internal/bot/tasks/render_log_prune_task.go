package tasks

import (
	"context"
	"fmt"
	"time"
)

// newRenderLogPruneTask deletes render log rows older than the configured
// retention.
func newRenderLogPruneTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", RenderLogPrune)

	return func(ctx context.Context) error {
		retention := deps.Config.Database.RenderRetention
		cutoff := time.Now().Add(-retention)

		removed, err := deps.Store.PruneRenders(ctx, cutoff)
		if err != nil {
			log.ErrorContext(ctx, "Render log prune failed", "error", err)
			return fmt.Errorf("prune render log: %w", err)
		}

		log.InfoContext(ctx, "Pruned render log", "removed", removed, "retention", retention)
		return nil
	}
}
