package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/repository"
)

const staleSessionAge = 7 * 24 * time.Hour

// MaintenanceService backs the storage dashboard and data retention.
type MaintenanceService interface {
	StorageReport(ctx context.Context) (dto.StorageReportResponse, error)
	Cleanup(ctx context.Context, payload dto.CleanupRequest, actor ActivityActor) (dto.CleanupResponse, error)
}

type maintenanceService struct {
	repo      repository.MaintenanceRepository
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
	now       func() time.Time
}

// NewMaintenanceService constructs the maintenance service.
func NewMaintenanceService(repo repository.MaintenanceRepository, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) MaintenanceService {
	return &maintenanceService{
		repo:      repo,
		validator: validate,
		activity:  activity,
		logger:    logger.With().Str("component", "maintenance_service").Logger(),
		now:       time.Now,
	}
}

func (s *maintenanceService) StorageReport(ctx context.Context) (dto.StorageReportResponse, error) {
	stats, err := s.repo.TableStats(ctx)
	if err != nil {
		return dto.StorageReportResponse{}, err
	}

	report := dto.StorageReportResponse{
		Tables:      make([]dto.TableStatResponse, 0, len(stats)),
		GeneratedAt: s.now().UTC(),
	}
	for _, stat := range stats {
		report.Tables = append(report.Tables, dto.TableStatResponse{
			Table:     stat.Table,
			Rows:      stat.Rows,
			SizeBytes: stat.SizeBytes,
		})
		report.TotalRows += stat.Rows
	}

	return report, nil
}

// Cleanup removes attempts older than the requested age, then sweeps exited sessions that have
// been idle for a week without a submission.
func (s *maintenanceService) Cleanup(ctx context.Context, payload dto.CleanupRequest, actor ActivityActor) (dto.CleanupResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CleanupResponse{}, err
	}

	now := s.now().UTC()
	cutoff := now.AddDate(0, 0, -payload.OlderThanDays)

	purged, err := s.repo.PurgeBefore(ctx, cutoff)
	if err != nil {
		return dto.CleanupResponse{}, err
	}

	stale, err := s.repo.PurgeStaleSessions(ctx, now.Add(-staleSessionAge))
	if err != nil {
		return dto.CleanupResponse{}, err
	}

	response := dto.CleanupResponse{
		Cutoff:        cutoff,
		Submissions:   purged.Submissions,
		Answers:       purged.Answers,
		Sessions:      purged.Sessions,
		Attempts:      purged.Attempts,
		StaleSessions: stale,
	}

	s.logger.Info().
		Time("cutoff", cutoff).
		Int64("submissions", response.Submissions).
		Int64("sessions", response.Sessions).
		Int64("stale_sessions", stale).
		Msg("cleanup completed")
	recordActivity(ctx, s.activity, s.logger, actor, "maintenance.cleanup", "database", nil, map[string]interface{}{
		"older_than_days": payload.OlderThanDays,
		"submissions":     response.Submissions,
		"sessions":        response.Sessions,
		"stale_sessions":  stale,
	})

	return response, nil
}
