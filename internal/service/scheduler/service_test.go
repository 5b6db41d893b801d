package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/novelmaze/novelmaze/internal/config"
	prommetrics "github.com/novelmaze/novelmaze/internal/metrics"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

type stubNormalizer struct {
	repaired int
	err      error
	calls    int
}

func (s *stubNormalizer) NormalizeAll(context.Context) (int, error) {
	s.calls++
	return s.repaired, s.err
}

type stubCleaner struct {
	retention time.Duration
	calls     int
}

func (s *stubCleaner) Cleanup(_ context.Context, retention time.Duration) (int64, error) {
	s.calls++
	s.retention = retention
	return 3, nil
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "every 15 minutes", expr: "*/15 * * * *"},
		{name: "daily at 3am", expr: "0 3 * * *"},
		{name: "weekdays at 9am", expr: "0 9 * * 1-5"},
		{name: "descriptor", expr: "@hourly"},
		{name: "too few fields", expr: "0 3 * *", wantErr: true},
		{name: "invalid hour", expr: "0 25 * * *", wantErr: true},
		{name: "garbage", expr: "whenever", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestStart_Disabled(t *testing.T) {
	s := NewService(&config.Config{}, &stubNormalizer{}, &stubCleaner{}, logger.Nop())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.cron != nil {
		t.Error("cron should not be created when the scheduler is disabled")
	}
	s.Stop()
}

func TestStart_RegistersJobs(t *testing.T) {
	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{
			Enabled:           true,
			NormalizeSchedule: "*/15 * * * *",
			CleanupSchedule:   "0 3 * * *",
			Timezone:          "Europe/Paris",
		},
	}
	s := NewService(cfg, &stubNormalizer{}, &stubCleaner{}, logger.Nop())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if got := len(s.cron.Entries()); got != 2 {
		t.Errorf("expected 2 jobs, got %d", got)
	}
}

func TestStart_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SchedulerConfig
	}{
		{
			name: "bad timezone",
			cfg:  config.SchedulerConfig{Enabled: true, Timezone: "Nowhere/Land", NormalizeSchedule: "@hourly"},
		},
		{
			name: "bad schedule",
			cfg:  config.SchedulerConfig{Enabled: true, Timezone: "UTC", NormalizeSchedule: "every hour"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(&config.Config{Scheduler: tt.cfg}, &stubNormalizer{}, &stubCleaner{}, logger.Nop())
			if err := s.Start(); err == nil {
				s.Stop()
				t.Fatal("expected Start() to fail")
			}
		})
	}
}

func TestRunJob_RecordsOutcome(t *testing.T) {
	normalizer := &stubNormalizer{repaired: 4}
	s := NewService(&config.Config{}, normalizer, &stubCleaner{}, logger.Nop())

	success := prommetrics.SchedulerJobRunsTotal.WithLabelValues(JobNormalize, "success")
	failure := prommetrics.SchedulerJobRunsTotal.WithLabelValues(JobNormalize, "error")
	beforeSuccess := testutil.ToFloat64(success)
	beforeFailure := testutil.ToFloat64(failure)

	s.runJob(context.Background(), JobNormalize, s.runNormalization)
	normalizer.err = errors.New("database unavailable")
	s.runJob(context.Background(), JobNormalize, s.runNormalization)

	if normalizer.calls != 2 {
		t.Errorf("expected 2 normalization calls, got %d", normalizer.calls)
	}
	if got := testutil.ToFloat64(success) - beforeSuccess; got != 1 {
		t.Errorf("expected 1 successful run, got %v", got)
	}
	if got := testutil.ToFloat64(failure) - beforeFailure; got != 1 {
		t.Errorf("expected 1 failed run, got %v", got)
	}
}

func TestRunNotificationCleanup(t *testing.T) {
	cleaner := &stubCleaner{}
	cfg := &config.Config{Notifications: config.NotificationsConfig{RetentionDays: 30}}
	s := NewService(cfg, &stubNormalizer{}, cleaner, logger.Nop())

	if err := s.runNotificationCleanup(context.Background()); err != nil {
		t.Fatalf("runNotificationCleanup() error = %v", err)
	}
	if cleaner.retention != 30*24*time.Hour {
		t.Errorf("expected 30 day retention, got %v", cleaner.retention)
	}

	cfg.Notifications.RetentionDays = 0
	if err := s.runNotificationCleanup(context.Background()); err != nil {
		t.Fatalf("runNotificationCleanup() error = %v", err)
	}
	if cleaner.calls != 1 {
		t.Errorf("cleanup should be skipped when retention is disabled, got %d calls", cleaner.calls)
	}
}
