/**
 * @description
 * Cron scheduler setup for the periodic jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// JobSchedules carries the cron expressions for each periodic job. An empty
// expression disables that job.
type JobSchedules struct {
	Overdue           string
	NotificationReset string
	DueSoon           string
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	jobs      *Jobs
	logger    *slog.Logger
	schedules JobSchedules
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, schedules JobSchedules) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:      c,
		jobs:      jobs,
		logger:    logger,
		schedules: schedules,
	}
}

func (s *Scheduler) add(name, schedule string, fn func()) {
	if schedule == "" {
		s.logger.Info("job disabled", "job", name)
		return
	}
	if _, err := s.cron.AddFunc(schedule, fn); err != nil {
		s.logger.Error("failed to schedule job", "job", name, "err", err)
		return
	}
	s.logger.Info("scheduled job", "job", name, "schedule", schedule)
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	s.add("overdue_sweep", s.schedules.Overdue, s.jobs.ProcessOverduePasses)
	s.add("notification_reset", s.schedules.NotificationReset, s.jobs.ResetStaleNotificationCounters)
	s.add("due_soon_reminders", s.schedules.DueSoon, s.jobs.SendDueSoonReminders)
	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
