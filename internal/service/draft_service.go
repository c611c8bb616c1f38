package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/observability"
	"github.com/noah-isme/gema-quiz-api/internal/repository"
)

// ErrDraftUnavailable indicates neither draft tier accepted the request.
var ErrDraftUnavailable = errors.New("draft storage unavailable")

// Draft sources reported to clients.
const (
	DraftSourceStore = "store"
	DraftSourceCache = "cache"
)

// DraftService persists in-progress answers. The session row is authoritative; Redis holds a
// mirror that is read only when the store cannot be reached.
type DraftService interface {
	Save(ctx context.Context, sessionID uint, payload dto.DraftSaveRequest) (dto.DraftSaveResponse, error)
	Load(ctx context.Context, sessionID uint) (dto.DraftResponse, error)
}

type draftService struct {
	sessions  repository.SessionRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDraftService constructs the draft autosave service.
func NewDraftService(sessions repository.SessionRepository, cache *redis.Client, ttl time.Duration, validate *validator.Validate, logger zerolog.Logger) DraftService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &draftService{
		sessions:  sessions,
		cache:     cache,
		cacheTTL:  ttl,
		validator: validate,
		logger:    logger.With().Str("component", "draft_service").Logger(),
		now:       time.Now,
	}
}

func (s *draftService) Save(ctx context.Context, sessionID uint, payload dto.DraftSaveRequest) (dto.DraftSaveResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.DraftSaveResponse{}, err
	}

	var storeErr error
	session, err := s.sessions.GetByID(ctx, sessionID)
	switch {
	case err == nil:
		if session.IsSubmitted() {
			return dto.DraftSaveResponse{}, ErrSessionSubmitted
		}
		storeErr = s.sessions.SaveDraft(ctx, sessionID, payload.DraftAnswers, s.now().UTC())
		if errors.Is(storeErr, repository.ErrSessionLocked) {
			return dto.DraftSaveResponse{}, ErrSessionSubmitted
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return dto.DraftSaveResponse{}, ErrSessionNotFound
	default:
		storeErr = err
	}

	cacheErr := s.mirror(ctx, sessionID, payload.DraftAnswers)

	if storeErr == nil {
		if cacheErr != nil {
			s.logger.Warn().Err(cacheErr).Uint("session_id", sessionID).Msg("failed to mirror draft")
		}
		observability.DraftSaves().WithLabelValues("stored").Inc()
		return dto.DraftSaveResponse{Success: true}, nil
	}

	if cacheErr == nil {
		s.logger.Warn().Err(storeErr).Uint("session_id", sessionID).Msg("draft kept in cache only")
		observability.DraftSaves().WithLabelValues("degraded").Inc()
		return dto.DraftSaveResponse{Success: true, Degraded: true}, nil
	}

	observability.DraftSaves().WithLabelValues("failed").Inc()
	s.logger.Error().Err(storeErr).AnErr("cache_error", cacheErr).Uint("session_id", sessionID).Msg("failed to save draft")
	return dto.DraftSaveResponse{}, fmt.Errorf("%w: %w", ErrDraftUnavailable, errors.Join(storeErr, cacheErr))
}

func (s *draftService) Load(ctx context.Context, sessionID uint) (dto.DraftResponse, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err == nil {
		return dto.DraftResponse{DraftAnswers: session.Drafts(), Source: DraftSourceStore}, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.DraftResponse{}, ErrSessionNotFound
	}

	s.logger.Warn().Err(err).Uint("session_id", sessionID).Msg("draft store read failed, using cache")

	drafts, cacheErr := s.readMirror(ctx, sessionID)
	if cacheErr != nil {
		return dto.DraftResponse{}, fmt.Errorf("%w: %w", ErrDraftUnavailable, errors.Join(err, cacheErr))
	}

	return dto.DraftResponse{DraftAnswers: drafts, Source: DraftSourceCache}, nil
}

func (s *draftService) mirror(ctx context.Context, sessionID uint, drafts map[string]string) error {
	if s.cache == nil {
		return errors.New("draft cache not configured")
	}

	payload, err := json.Marshal(drafts)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, draftCacheKey(sessionID), payload, s.cacheTTL).Err()
}

func (s *draftService) readMirror(ctx context.Context, sessionID uint) (map[string]string, error) {
	if s.cache == nil {
		return nil, errors.New("draft cache not configured")
	}

	raw, err := s.cache.Get(ctx, draftCacheKey(sessionID)).Bytes()
	if err != nil {
		return nil, err
	}

	drafts := map[string]string{}
	if err := json.Unmarshal(raw, &drafts); err != nil {
		return nil, err
	}
	return drafts, nil
}

func draftCacheKey(sessionID uint) string {
	return fmt.Sprintf("session:%d:draft", sessionID)
}
