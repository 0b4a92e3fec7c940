package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/oxbridge-edu/admissions-bot/internal/bot/tasks"
	"github.com/oxbridge-edu/admissions-bot/internal/config"
)

// Scheduler manages scheduled tasks using the gocron library.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	cfg       *config.SchedulerConfig
	taskMap   map[string]tasks.ScheduledTaskFunc
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(logger *slog.Logger, cfg *config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		logger:    logger.With("component", "scheduler"),
		cfg:       cfg,
		taskMap:   taskMap,
	}, nil
}

// Start schedules and starts all enabled tasks from the configuration.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	scheduledCount := 0
	for taskName, taskConfig := range s.cfg.Tasks {
		if !taskConfig.Enabled {
			s.logger.Info("skipping disabled task", "task_name", taskName)
			continue
		}

		taskFunc, exists := s.taskMap[taskName]
		if !exists {
			s.logger.Warn("task configured but not registered, skipping", "task_name", taskName)
			continue
		}
		if taskConfig.Schedule == "" {
			s.logger.Warn("task enabled but has empty schedule, skipping", "task_name", taskName)
			continue
		}

		_, err := s.scheduler.NewJob(
			gocron.CronJob(taskConfig.Schedule, false),
			gocron.NewTask(
				func(ctx context.Context, name string) {
					s.logger.Info("running scheduled task", "task_name", name)
					start := time.Now()
					if taskErr := taskFunc(ctx); taskErr != nil {
						s.logger.Error("scheduled task failed", "task_name", name, "error", taskErr)
					}
					s.logger.Info("finished scheduled task", "task_name", name, "duration", time.Since(start))
				},
				context.Background(),
				taskName,
			),
			gocron.WithName(taskName),
		)
		if err != nil {
			s.logger.Error("failed to schedule task",
				"task_name", taskName, "schedule", taskConfig.Schedule, "error", err)
			continue
		}

		s.logger.Info("scheduled task", "task_name", taskName, "schedule", taskConfig.Schedule)
		scheduledCount++
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info("scheduler started", "tasks_scheduled", scheduledCount)
	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	err := s.scheduler.Shutdown()
	s.running = false
	if err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}
