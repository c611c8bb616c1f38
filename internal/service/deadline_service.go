package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/repository"
)

const sweepBatchSize = 100

// DeadlineService evaluates server-anchored deadlines and triggers forced submissions.
type DeadlineService interface {
	Check(ctx context.Context, sessionID uint) (dto.DeadlineCheckResponse, error)
	SweepExpired(ctx context.Context) (int, error)
}

type deadlineService struct {
	sessions  repository.SessionRepository
	submitter AutoSubmitter
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDeadlineService constructs the deadline evaluator.
func NewDeadlineService(sessions repository.SessionRepository, submitter AutoSubmitter, logger zerolog.Logger) DeadlineService {
	return &deadlineService{
		sessions:  sessions,
		submitter: submitter,
		logger:    logger.With().Str("component", "deadline_service").Logger(),
		now:       time.Now,
	}
}

// Check reports the remaining time of a session. Untimed sessions report -1 seconds and never
// expire. An expired, unsubmitted session is auto-submitted once from its drafts.
func (s *deadlineService) Check(ctx context.Context, sessionID uint) (dto.DeadlineCheckResponse, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.DeadlineCheckResponse{}, ErrSessionNotFound
		}
		return dto.DeadlineCheckResponse{}, err
	}

	if session.DeadlineAt == nil {
		return dto.DeadlineCheckResponse{Expired: false, RemainingSeconds: -1}, nil
	}

	now := s.now()
	response := dto.DeadlineCheckResponse{
		DeadlineAt:       session.DeadlineAt,
		RemainingSeconds: remainingSeconds(*session.DeadlineAt, now),
		Expired:          session.IsExpired(now),
		SubmissionID:     session.SubmissionID,
	}

	if !response.Expired {
		return response, nil
	}

	if session.IsSubmitted() {
		return response, nil
	}

	result, err := s.submitter.AutoSubmit(ctx, session.ID)
	switch {
	case err == nil:
		response.AutoSubmitted = true
		response.SubmissionID = &result.SubmissionID
	case errors.Is(err, ErrAutoSubmitInProgress):
		s.logger.Debug().Uint("session_id", session.ID).Msg("auto submission already running")
	case errors.Is(err, ErrAssignmentNotFound):
		s.logger.Warn().Uint("session_id", session.ID).Uint("assignment_id", session.AssignmentID).Msg("expired session has no questions to grade")
	default:
		s.logger.Error().Err(err).Uint("session_id", session.ID).Msg("auto submission failed")
		return dto.DeadlineCheckResponse{}, err
	}

	return response, nil
}

// SweepExpired auto-submits expired sessions that no client is polling anymore.
func (s *deadlineService) SweepExpired(ctx context.Context) (int, error) {
	sessions, err := s.sessions.ListExpired(ctx, s.now().UTC(), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	submitted := 0
	for _, session := range sessions {
		if ctx.Err() != nil {
			return submitted, ctx.Err()
		}
		if _, err := s.submitter.AutoSubmit(ctx, session.ID); err != nil {
			if errors.Is(err, ErrAutoSubmitInProgress) {
				continue
			}
			s.logger.Warn().Err(err).Uint("session_id", session.ID).Msg("sweeper failed to auto submit session")
			continue
		}
		submitted++
	}

	if submitted > 0 {
		s.logger.Info().Int("sessions", submitted).Msg("expired sessions auto submitted")
	}

	return submitted, nil
}

func remainingSeconds(deadline, now time.Time) int64 {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64(math.Ceil(remaining.Seconds()))
}
