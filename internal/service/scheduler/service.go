// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/novelmaze/novelmaze/internal/config"
	prommetrics "github.com/novelmaze/novelmaze/internal/metrics"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

// Job names used in logs and metrics.
const (
	JobNormalize           = "normalize"
	JobNotificationCleanup = "notification_cleanup"
)

// Normalizer repairs gamification level state.
type Normalizer interface {
	NormalizeAll(ctx context.Context) (int, error)
}

// Cleaner removes old notifications.
type Cleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// Service handles scheduled jobs.
type Service struct {
	config     *config.Config
	normalizer Normalizer
	cleaner    Cleaner
	log        *logger.Logger
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewService creates a new scheduler service.
func NewService(cfg *config.Config, normalizer Normalizer, cleaner Cleaner, log *logger.Logger) *Service {
	return &Service{
		config:     cfg,
		normalizer: normalizer,
		cleaner:    cleaner,
		log:        log.Component("scheduler"),
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.Scheduler.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Scheduler.Timezone, err)
	}

	s.cron = cron.New(
		cron.WithLocation(location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) error
	}{
		{JobNormalize, s.config.Scheduler.NormalizeSchedule, s.runNormalization},
		{JobNotificationCleanup, s.config.Scheduler.CleanupSchedule, s.runNotificationCleanup},
	}
	for _, job := range jobs {
		if job.schedule == "" {
			s.log.Info().Str("job", job.name).Msg("Job has no schedule, skipping")
			continue
		}
		if err := validateSchedule(job.schedule); err != nil {
			return fmt.Errorf("invalid schedule for %s: %w", job.name, err)
		}
		name, run := job.name, job.run
		if _, err := s.cron.AddFunc(job.schedule, func() { s.runJob(s.ctx, name, run) }); err != nil {
			return fmt.Errorf("failed to register %s job: %w", name, err)
		}
		s.log.Info().Str("job", name).Str("schedule", job.schedule).Msg("Job registered")
	}

	s.cron.Start()

	nextRun := ""
	if entries := s.cron.Entries(); len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}
	s.log.Info().
		Str("timezone", s.config.Scheduler.Timezone).
		Int("jobs", len(s.cron.Entries())).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// validateSchedule checks a standard five-field cron expression.
func validateSchedule(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// runJob executes one job and records its outcome.
func (s *Service) runJob(ctx context.Context, name string, run func(context.Context) error) {
	start := time.Now()
	s.log.Info().Str("job", name).Msg("Running scheduled job")

	err := run(ctx)
	duration := time.Since(start)
	if err != nil {
		prommetrics.RecordSchedulerJobRun(name, "error", duration.Seconds())
		s.log.Error().
			Err(err).
			Str("job", name).
			Dur("duration", duration).
			Msg("Scheduled job failed")
		return
	}

	prommetrics.RecordSchedulerJobRun(name, "success", duration.Seconds())
	s.log.Info().
		Str("job", name).
		Dur("duration", duration).
		Msg("Scheduled job completed successfully")
}

func (s *Service) runNormalization(ctx context.Context) error {
	repaired, err := s.normalizer.NormalizeAll(ctx)
	if err != nil {
		return err
	}
	s.log.Info().Int("repaired", repaired).Msg("Normalization sweep finished")
	return nil
}

func (s *Service) runNotificationCleanup(ctx context.Context) error {
	days := s.config.Notifications.RetentionDays
	if days <= 0 {
		s.log.Debug().Msg("Notification retention disabled")
		return nil
	}
	_, err := s.cleaner.Cleanup(ctx, time.Duration(days)*24*time.Hour)
	return err
}
