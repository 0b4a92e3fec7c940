package tasks

import (
	"context"
)

// ScheduledTaskFunc defines the standard signature for all scheduled
// tasks. The context provided by the scheduler should be respected for
// cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks initializes and returns a map of all registered
// scheduled tasks. The keys match the task names in the scheduler
// configuration.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := make(map[string]ScheduledTaskFunc)

	tasks["tour_reminders"] = newTourRemindersTask(deps)
	tasks["tour_followups"] = newTourFollowupsTask(deps)
	tasks["tour_status_check"] = newTourStatusCheckTask(deps)

	deps.Logger.Info("initialized scheduled tasks", "count", len(tasks))
	return tasks
}
