package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/models"
	"github.com/noah-isme/gema-quiz-api/internal/repository"
)

var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStudentNameRequired indicates the student name is empty after trimming.
	ErrStudentNameRequired = errors.New("student name is required")
	// ErrSessionSubmitted indicates the session already reached its terminal state.
	ErrSessionSubmitted = errors.New("session already submitted")
	// ErrInvalidSessionTransition indicates the requested status change is not allowed.
	ErrInvalidSessionTransition = errors.New("invalid session status transition")
)

// SessionService manages student attempts and their activity state.
type SessionService interface {
	Create(ctx context.Context, payload dto.SessionCreateRequest) (dto.SessionCreateResponse, error)
	FindIncomplete(ctx context.Context, req dto.SessionLookupRequest) (dto.SessionLookupResponse, error)
	Get(ctx context.Context, id uint) (dto.SessionResponse, error)
	SetStatus(ctx context.Context, payload dto.SessionStatusRequest) (dto.SessionResponse, error)
	Exit(ctx context.Context, id uint, payload dto.SessionExitRequest) error
	Beacon(ctx context.Context, id uint) error
	TouchActivity(ctx context.Context, id uint) error
	Delete(ctx context.Context, id uint) error
	ListLive(ctx context.Context, assignmentID uint) ([]dto.LiveSessionResponse, error)
}

type sessionService struct {
	assignments  repository.AssignmentRepository
	repo         repository.SessionRepository
	cache        *redis.Client
	validator    *validator.Validate
	names        NameSanitizer
	activeWindow time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

// NewSessionService constructs the session manager.
func NewSessionService(assignments repository.AssignmentRepository, repo repository.SessionRepository, cache *redis.Client, validate *validator.Validate, activeWindow time.Duration, logger zerolog.Logger) SessionService {
	if activeWindow <= 0 {
		activeWindow = 2 * time.Minute
	}
	return &sessionService{
		assignments:  assignments,
		repo:         repo,
		cache:        cache,
		validator:    validate,
		names:        NewNameSanitizer(),
		activeWindow: activeWindow,
		logger:       logger.With().Str("component", "session_service").Logger(),
		now:          time.Now,
	}
}

func (s *sessionService) Create(ctx context.Context, payload dto.SessionCreateRequest) (dto.SessionCreateResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionCreateResponse{}, err
	}

	name := s.names.Clean(payload.StudentName)
	if name == "" {
		return dto.SessionCreateResponse{}, ErrStudentNameRequired
	}

	assignment, err := s.assignments.GetByID(ctx, payload.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SessionCreateResponse{}, ErrAssignmentNotFound
		}
		return dto.SessionCreateResponse{}, err
	}
	if assignment.Hidden {
		return dto.SessionCreateResponse{}, ErrAssignmentNotFound
	}

	now := s.now().UTC()
	session := models.StudentSession{
		AssignmentID:   assignment.ID,
		StudentName:    name,
		Status:         models.SessionStatusActive,
		StartedAt:      now,
		LastActivityAt: now,
		DraftAnswers:   models.DraftMap(nil),
	}
	if assignment.IsTimed() {
		deadline := now.Add(assignment.Duration())
		session.DeadlineAt = &deadline
	}

	if err := s.repo.Create(ctx, &session); err != nil {
		s.logger.Error().Err(err).Uint("assignment_id", assignment.ID).Msg("failed to create session")
		return dto.SessionCreateResponse{}, err
	}

	s.logger.Info().Uint("session_id", session.ID).Uint("assignment_id", assignment.ID).Msg("session started")

	return dto.SessionCreateResponse{SessionID: session.ID, DeadlineAt: session.DeadlineAt}, nil
}

func (s *sessionService) FindIncomplete(ctx context.Context, req dto.SessionLookupRequest) (dto.SessionLookupResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SessionLookupResponse{}, err
	}

	name := s.names.Clean(req.StudentName)
	if name == "" {
		return dto.SessionLookupResponse{}, ErrStudentNameRequired
	}

	session, err := s.repo.FindIncomplete(ctx, req.AssignmentID, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SessionLookupResponse{HasIncomplete: false}, nil
		}
		return dto.SessionLookupResponse{}, err
	}

	response := dto.NewSessionResponse(session)
	return dto.SessionLookupResponse{HasIncomplete: true, Session: &response}, nil
}

func (s *sessionService) Get(ctx context.Context, id uint) (dto.SessionResponse, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	return dto.NewSessionResponse(session), nil
}

func (s *sessionService) SetStatus(ctx context.Context, payload dto.SessionStatusRequest) (dto.SessionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionResponse{}, err
	}

	session, err := s.load(ctx, payload.SessionID)
	if err != nil {
		return dto.SessionResponse{}, err
	}

	now := s.now().UTC()
	switch {
	case session.IsSubmitted() && payload.Status != models.SessionStatusSubmitted:
		return dto.SessionResponse{}, ErrSessionSubmitted
	case session.IsSubmitted():
		return dto.NewSessionResponse(session), nil
	case payload.Status == models.SessionStatusSubmitted && session.SubmissionID == nil:
		return dto.SessionResponse{}, ErrInvalidSessionTransition
	case payload.Status == models.SessionStatusExited && session.Status == models.SessionStatusActive:
		err = s.repo.MarkExited(ctx, session.ID, now)
		session.ExitCount++
	default:
		err = s.repo.UpdateStatus(ctx, session.ID, payload.Status, now)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SessionResponse{}, ErrSessionNotFound
		}
		if errors.Is(err, repository.ErrSessionLocked) {
			return dto.SessionResponse{}, ErrSessionSubmitted
		}
		s.logger.Error().Err(err).Uint("session_id", session.ID).Msg("failed to update session status")
		return dto.SessionResponse{}, err
	}

	session.Status = payload.Status
	session.LastActivityAt = now

	return dto.NewSessionResponse(session), nil
}

func (s *sessionService) Exit(ctx context.Context, id uint, payload dto.SessionExitRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	session, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if session.IsSubmitted() {
		return ErrSessionSubmitted
	}

	if payload.Mode == dto.ExitModeDiscard {
		return s.Delete(ctx, id)
	}

	_, err = s.SetStatus(ctx, dto.SessionStatusRequest{SessionID: id, Status: models.SessionStatusExited})
	return err
}

// Beacon records a best-effort page unload. Submitted or unknown sessions are ignored.
func (s *sessionService) Beacon(ctx context.Context, id uint) error {
	session, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if session.Status != models.SessionStatusActive {
		return nil
	}

	err = s.repo.MarkExited(ctx, id, s.now().UTC())
	if errors.Is(err, repository.ErrSessionLocked) {
		s.logger.Debug().Uint("session_id", id).Msg("beacon ignored for submitted session")
		return nil
	}
	return err
}

func (s *sessionService) TouchActivity(ctx context.Context, id uint) error {
	if err := s.repo.TouchActivity(ctx, id, s.now().UTC()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if errors.Is(err, repository.ErrSessionLocked) {
			return ErrSessionSubmitted
		}
		return err
	}
	return nil
}

func (s *sessionService) Delete(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		s.logger.Error().Err(err).Uint("session_id", id).Msg("failed to delete session")
		return err
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, draftCacheKey(id)).Err(); err != nil {
			s.logger.Warn().Err(err).Uint("session_id", id).Msg("failed to drop draft mirror")
		}
	}

	s.logger.Info().Uint("session_id", id).Msg("session deleted")
	return nil
}

func (s *sessionService) ListLive(ctx context.Context, assignmentID uint) ([]dto.LiveSessionResponse, error) {
	sessions, err := s.repo.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	responses := make([]dto.LiveSessionResponse, 0, len(sessions))
	for _, session := range sessions {
		idle := now.Sub(session.LastActivityAt)
		if idle < 0 {
			idle = 0
		}
		responses = append(responses, dto.LiveSessionResponse{
			SessionResponse: dto.NewSessionResponse(session),
			RecentlyActive:  idle <= s.activeWindow,
			IdleSeconds:     int64(idle / time.Second),
		})
	}

	return responses, nil
}

func (s *sessionService) load(ctx context.Context, id uint) (models.StudentSession, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.StudentSession{}, ErrSessionNotFound
		}
		return models.StudentSession{}, err
	}
	return session, nil
}
