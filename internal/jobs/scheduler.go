package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/observability"
	"github.com/noah-isme/gema-quiz-api/internal/service"
)

const jobTimeout = 2 * time.Minute

// Config declares the cron expressions for background jobs. Empty schedules disable a job.
type Config struct {
	DeadlineSweep        string
	Cleanup              string
	CleanupRetentionDays int
}

// Scheduler runs the deadline sweeper and the retention cleanup.
type Scheduler struct {
	cron        *cron.Cron
	deadlines   service.DeadlineService
	maintenance service.MaintenanceService
	cfg         Config
	logger      zerolog.Logger
}

// NewScheduler registers the configured jobs without starting them.
func NewScheduler(cfg Config, deadlines service.DeadlineService, maintenance service.MaintenanceService, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:        cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
		deadlines:   deadlines,
		maintenance: maintenance,
		cfg:         cfg,
		logger:      logger.With().Str("component", "scheduler").Logger(),
	}

	if cfg.DeadlineSweep != "" {
		if _, err := s.cron.AddFunc(cfg.DeadlineSweep, s.SweepDeadlines); err != nil {
			return nil, fmt.Errorf("schedule deadline sweep: %w", err)
		}
	}

	if cfg.Cleanup != "" && cfg.CleanupRetentionDays > 0 {
		if _, err := s.cron.AddFunc(cfg.Cleanup, s.Cleanup); err != nil {
			return nil, fmt.Errorf("schedule cleanup: %w", err)
		}
	}

	return s, nil
}

// Start launches the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop halts the scheduler and waits for running jobs or the context, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler stop timed out")
	}
}

// SweepDeadlines auto-submits sessions whose deadline passed without a client.
func (s *Scheduler) SweepDeadlines() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	count, err := s.deadlines.SweepExpired(ctx)
	if err != nil {
		observability.JobRuns().WithLabelValues("deadline_sweep", "error").Inc()
		s.logger.Error().Err(err).Msg("deadline sweep failed")
		return
	}

	observability.JobRuns().WithLabelValues("deadline_sweep", "success").Inc()
	if count > 0 {
		s.logger.Info().Int("submitted", count).Msg("deadline sweep auto-submitted sessions")
	}
}

// Cleanup purges attempts beyond the retention window.
func (s *Scheduler) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	_, err := s.maintenance.Cleanup(ctx, dto.CleanupRequest{OlderThanDays: s.cfg.CleanupRetentionDays}, service.SystemActor)
	if err != nil {
		observability.JobRuns().WithLabelValues("cleanup", "error").Inc()
		s.logger.Error().Err(err).Msg("scheduled cleanup failed")
		return
	}

	observability.JobRuns().WithLabelValues("cleanup", "success").Inc()
}
