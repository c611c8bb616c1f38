package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/models"
	"github.com/noah-isme/gema-quiz-api/internal/repository"
)

// ErrAssignmentNotFound indicates the requested assignment does not exist.
var ErrAssignmentNotFound = errors.New("assignment not found")

const assignmentCacheVersionKey = "assignments:list:version"

// AssignmentService exposes assignment domain use cases.
type AssignmentService interface {
	List(ctx context.Context, req dto.AssignmentListRequest) (dto.AssignmentListResponse, error)
	Get(ctx context.Context, id uint, includeHidden bool) (dto.AssignmentResponse, error)
	Create(ctx context.Context, payload dto.AssignmentCreateRequest, actor ActivityActor) (dto.AssignmentResponse, error)
	Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest, actor ActivityActor) (dto.AssignmentResponse, error)
	Delete(ctx context.Context, id uint, actor ActivityActor) error
}

type assignmentService struct {
	repo      repository.AssignmentRepository
	questions repository.QuestionRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	activity  ActivityRecorder
	notifier  QuestionChangeNotifier
	logger    zerolog.Logger
}

// NewAssignmentService builds a new assignment service.
func NewAssignmentService(repo repository.AssignmentRepository, questions repository.QuestionRepository, cache *redis.Client, ttl time.Duration, validate *validator.Validate, activity ActivityRecorder, notifier QuestionChangeNotifier, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		repo:      repo,
		questions: questions,
		cache:     cache,
		cacheTTL:  ttl,
		validator: validate,
		activity:  activity,
		notifier:  notifier,
		logger:    logger.With().Str("component", "assignment_service").Logger(),
	}
}

func (s *assignmentService) List(ctx context.Context, req dto.AssignmentListRequest) (dto.AssignmentListResponse, error) {
	filter := repository.AssignmentFilter{
		Search:        strings.TrimSpace(req.Search),
		Subject:       strings.TrimSpace(req.Subject),
		IncludeHidden: req.IncludeHidden,
		Sort:          req.Sort,
		Page:          normalizePage(req.Page),
		PageSize:      clampPageSize(req.PageSize),
	}

	cacheKey := s.listCacheKey(ctx, filter)
	if cacheKey != "" {
		cached, err := s.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var response dto.AssignmentListResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read assignment cache")
		}
	}

	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.AssignmentListResponse{}, err
	}

	response := dto.AssignmentListResponse{
		Items:      dto.NewAssignmentResponseSlice(assignments),
		Pagination: dto.NewPaginationMeta(filter.Page, filter.PageSize, total),
	}

	if cacheKey != "" {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store assignment cache")
			}
		}
	}

	return response, nil
}

func (s *assignmentService) Get(ctx context.Context, id uint, includeHidden bool) (dto.AssignmentResponse, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, err
	}

	if assignment.Hidden && !includeHidden {
		return dto.AssignmentResponse{}, ErrAssignmentNotFound
	}

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Create(ctx context.Context, payload dto.AssignmentCreateRequest, actor ActivityActor) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment := models.Assignment{
		Title:      strings.TrimSpace(payload.Title),
		Subject:    strings.TrimSpace(payload.Subject),
		Grade:      strings.TrimSpace(payload.Grade),
		TotalScore: models.DefaultTotalScore,
		Hidden:     payload.Hidden,
	}

	if payload.DueAt != nil {
		dueAt, err := time.Parse(time.RFC3339, *payload.DueAt)
		if err != nil {
			return dto.AssignmentResponse{}, fmt.Errorf("invalid due date: %w", err)
		}
		assignment.DueAt = &dueAt
	}

	if payload.DurationMinutes != nil && *payload.DurationMinutes > 0 {
		duration := *payload.DurationMinutes
		assignment.DurationMinutes = &duration
	}

	if payload.TotalScore != nil {
		assignment.TotalScore = *payload.TotalScore
	}

	if err := s.repo.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.invalidateCache(ctx)
	s.logger.Info().Uint("assignment_id", assignment.ID).Msg("assignment created")
	recordActivity(ctx, s.activity, s.logger, actor, "assignment.created", "assignment", uintPtr(assignment.ID), map[string]interface{}{
		"title": assignment.Title,
	})

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest, actor ActivityActor) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, err
	}

	if payload.Title != nil {
		assignment.Title = strings.TrimSpace(*payload.Title)
	}
	if payload.Subject != nil {
		assignment.Subject = strings.TrimSpace(*payload.Subject)
	}
	if payload.Grade != nil {
		assignment.Grade = strings.TrimSpace(*payload.Grade)
	}
	if payload.ClearDueAt {
		assignment.DueAt = nil
	} else if payload.DueAt != nil {
		dueAt, err := time.Parse(time.RFC3339, *payload.DueAt)
		if err != nil {
			return dto.AssignmentResponse{}, fmt.Errorf("invalid due date: %w", err)
		}
		assignment.DueAt = &dueAt
	}
	if payload.DurationMinutes != nil {
		if *payload.DurationMinutes > 0 {
			duration := *payload.DurationMinutes
			assignment.DurationMinutes = &duration
		} else {
			assignment.DurationMinutes = nil
		}
	}
	if payload.Hidden != nil {
		assignment.Hidden = *payload.Hidden
	}

	totalChanged := payload.TotalScore != nil && *payload.TotalScore != assignment.TotalScore
	if payload.TotalScore != nil {
		assignment.TotalScore = *payload.TotalScore
	}

	if err := s.repo.Update(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if totalChanged {
		err := s.questions.Transaction(ctx, func(repo repository.QuestionRepository) error {
			questions, err := repo.ListByAssignment(ctx, assignment.ID)
			if err != nil {
				return err
			}
			return repo.SaveAll(ctx, RebalancePoints(questions, assignment.TotalScore))
		})
		if err != nil {
			return dto.AssignmentResponse{}, fmt.Errorf("rebalance question points: %w", err)
		}
		notifyQuestionsChanged(ctx, s.notifier, s.logger, assignment.ID)
	}

	s.invalidateCache(ctx)
	s.logger.Info().Uint("assignment_id", assignment.ID).Bool("rebalanced", totalChanged).Msg("assignment updated")
	recordActivity(ctx, s.activity, s.logger, actor, "assignment.updated", "assignment", uintPtr(assignment.ID), map[string]interface{}{
		"title":      assignment.Title,
		"rebalanced": totalChanged,
	})

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Delete(ctx context.Context, id uint, actor ActivityActor) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	s.invalidateCache(ctx)
	s.logger.Info().Uint("assignment_id", id).Msg("assignment deleted")
	recordActivity(ctx, s.activity, s.logger, actor, "assignment.deleted", "assignment", uintPtr(id), nil)
	return nil
}

// listCacheKey embeds a version counter so writes invalidate every cached page at once.
func (s *assignmentService) listCacheKey(ctx context.Context, filter repository.AssignmentFilter) string {
	if s.cache == nil || s.cacheTTL <= 0 {
		return ""
	}

	version, err := s.cache.Get(ctx, assignmentCacheVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Msg("failed to read assignment cache version")
		return ""
	}

	return fmt.Sprintf("assignments:list:v%d:%t:%d:%d:%s:%s:%s", version, filter.IncludeHidden, filter.Page, filter.PageSize,
		strings.ToLower(filter.Search), filter.Subject, filter.Sort)
}

func (s *assignmentService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, assignmentCacheVersionKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate assignment cache")
	}
}
