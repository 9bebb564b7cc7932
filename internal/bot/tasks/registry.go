package tasks

import (
	"context"
)

// ScheduledTaskFunc is the signature of every scheduled task. Tasks should
// respect ctx cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// Task names as used in the scheduler.tasks configuration section.
const (
	SQLMaintenance = "sql_maintenance"
	RenderLogPrune = "render_log_prune"
	FontWarmup     = "font_warmup"
)

// RegisterAllTasks returns every known task keyed by its configuration name.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		SQLMaintenance: newSQLMaintenanceTask(deps),
		RenderLogPrune: newRenderLogPruneTask(deps),
	}
	if deps.Fonts != nil {
		tasks[FontWarmup] = newFontWarmupTask(deps)
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
