package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/models"
	"github.com/noah-isme/gema-quiz-api/internal/repository"
)

var (
	// ErrQuestionNotFound indicates the requested question does not exist.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidQuestion indicates the question payload is inconsistent with its type.
	ErrInvalidQuestion = errors.New("invalid question")
)

// QuestionChangeNotifier is told whenever an assignment's question set changes.
type QuestionChangeNotifier interface {
	NotifyQuestionsChanged(ctx context.Context, assignmentID uint) error
}

// QuestionService exposes question authoring use cases. Every mutation rebalances points so the
// gradable questions always sum to the assignment's total score.
type QuestionService interface {
	List(ctx context.Context, assignmentID uint) ([]dto.QuestionResponse, error)
	Create(ctx context.Context, assignmentID uint, payload dto.QuestionCreateRequest, actor ActivityActor) (dto.QuestionResponse, error)
	Import(ctx context.Context, assignmentID uint, payloads []dto.QuestionCreateRequest, actor ActivityActor) ([]dto.QuestionResponse, error)
	Update(ctx context.Context, id uint, payload dto.QuestionUpdateRequest, actor ActivityActor) (dto.QuestionResponse, error)
	Delete(ctx context.Context, id uint, actor ActivityActor) error
	Reorder(ctx context.Context, assignmentID uint, payload dto.QuestionReorderRequest, actor ActivityActor) ([]dto.QuestionResponse, error)
}

type questionService struct {
	assignments repository.AssignmentRepository
	repo        repository.QuestionRepository
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	activity    ActivityRecorder
	notifier    QuestionChangeNotifier
	logger      zerolog.Logger
}

// NewQuestionService constructs the question authoring service.
func NewQuestionService(assignments repository.AssignmentRepository, repo repository.QuestionRepository, validate *validator.Validate, activity ActivityRecorder, notifier QuestionChangeNotifier, logger zerolog.Logger) QuestionService {
	return &questionService{
		assignments: assignments,
		repo:        repo,
		validator:   validate,
		sanitizer:   bluemonday.UGCPolicy(),
		activity:    activity,
		notifier:    notifier,
		logger:      logger.With().Str("component", "question_service").Logger(),
	}
}

func (s *questionService) List(ctx context.Context, assignmentID uint) ([]dto.QuestionResponse, error) {
	if _, err := s.loadAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}

	questions, err := s.repo.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	return dto.NewQuestionResponseSlice(questions), nil
}

func (s *questionService) Create(ctx context.Context, assignmentID uint, payload dto.QuestionCreateRequest, actor ActivityActor) (dto.QuestionResponse, error) {
	created, err := s.Import(ctx, assignmentID, []dto.QuestionCreateRequest{payload}, actor)
	if err != nil {
		return dto.QuestionResponse{}, err
	}
	return created[0], nil
}

func (s *questionService) Import(ctx context.Context, assignmentID uint, payloads []dto.QuestionCreateRequest, actor ActivityActor) ([]dto.QuestionResponse, error) {
	if len(payloads) == 0 {
		return nil, fmt.Errorf("%w: at least one question is required", ErrInvalidQuestion)
	}

	drafts := make([]models.Question, 0, len(payloads))
	for _, payload := range payloads {
		if err := s.validator.Struct(payload); err != nil {
			return nil, err
		}
		question := models.Question{AssignmentID: assignmentID}
		s.applyCreate(&question, payload)
		if err := validateQuestion(question); err != nil {
			return nil, err
		}
		drafts = append(drafts, question)
	}

	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	createdIDs := make(map[uint]struct{}, len(drafts))
	var saved []models.Question
	err = s.repo.Transaction(ctx, func(repo repository.QuestionRepository) error {
		existing, err := repo.ListByAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}

		ordered := append([]models.Question(nil), existing...)
		for i, payload := range payloads {
			question := drafts[i]
			if err := repo.Create(ctx, &question); err != nil {
				return err
			}
			createdIDs[question.ID] = struct{}{}
			ordered = insertAt(ordered, question, payload.Position)
		}

		saved = RebalancePoints(renumber(ordered), assignment.TotalScore)
		return repo.SaveAll(ctx, saved)
	})
	if err != nil {
		return nil, err
	}

	responses := make([]dto.QuestionResponse, 0, len(createdIDs))
	for _, question := range saved {
		if _, ok := createdIDs[question.ID]; ok {
			responses = append(responses, dto.NewQuestionResponse(question))
		}
	}

	notifyQuestionsChanged(ctx, s.notifier, s.logger, assignmentID)
	s.logger.Info().Uint("assignment_id", assignmentID).Int("created", len(responses)).Msg("questions created")
	recordActivity(ctx, s.activity, s.logger, actor, "question.created", "assignment", uintPtr(assignmentID), map[string]interface{}{
		"count": len(responses),
	})

	return responses, nil
}

func (s *questionService) Update(ctx context.Context, id uint, payload dto.QuestionUpdateRequest, actor ActivityActor) (dto.QuestionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.QuestionResponse{}, err
	}

	question, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuestionResponse{}, ErrQuestionNotFound
		}
		return dto.QuestionResponse{}, err
	}

	s.applyUpdate(&question, payload)
	if err := validateQuestion(question); err != nil {
		return dto.QuestionResponse{}, err
	}

	assignment, err := s.loadAssignment(ctx, question.AssignmentID)
	if err != nil {
		return dto.QuestionResponse{}, err
	}

	var updated models.Question
	err = s.repo.Transaction(ctx, func(repo repository.QuestionRepository) error {
		if err := repo.Update(ctx, &question); err != nil {
			return err
		}
		questions, err := repo.ListByAssignment(ctx, question.AssignmentID)
		if err != nil {
			return err
		}
		questions = RebalancePoints(questions, assignment.TotalScore)
		for _, item := range questions {
			if item.ID == question.ID {
				updated = item
			}
		}
		return repo.SaveAll(ctx, questions)
	})
	if err != nil {
		return dto.QuestionResponse{}, err
	}

	notifyQuestionsChanged(ctx, s.notifier, s.logger, question.AssignmentID)
	recordActivity(ctx, s.activity, s.logger, actor, "question.updated", "question", uintPtr(question.ID), map[string]interface{}{
		"assignment_id": question.AssignmentID,
	})

	return dto.NewQuestionResponse(updated), nil
}

func (s *questionService) Delete(ctx context.Context, id uint, actor ActivityActor) error {
	question, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		return err
	}

	assignment, err := s.loadAssignment(ctx, question.AssignmentID)
	if err != nil {
		return err
	}

	err = s.repo.Transaction(ctx, func(repo repository.QuestionRepository) error {
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		questions, err := repo.ListByAssignment(ctx, question.AssignmentID)
		if err != nil {
			return err
		}
		return repo.SaveAll(ctx, RebalancePoints(renumber(questions), assignment.TotalScore))
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		return err
	}

	notifyQuestionsChanged(ctx, s.notifier, s.logger, question.AssignmentID)
	recordActivity(ctx, s.activity, s.logger, actor, "question.deleted", "question", uintPtr(id), map[string]interface{}{
		"assignment_id": question.AssignmentID,
	})
	return nil
}

func (s *questionService) Reorder(ctx context.Context, assignmentID uint, payload dto.QuestionReorderRequest, actor ActivityActor) ([]dto.QuestionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, err
	}

	if _, err := s.loadAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}

	var reordered []models.Question
	err := s.repo.Transaction(ctx, func(repo repository.QuestionRepository) error {
		questions, err := repo.ListByAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if len(questions) != len(payload.QuestionIDs) {
			return fmt.Errorf("%w: reorder must list every question exactly once", ErrInvalidQuestion)
		}

		byID := make(map[uint]models.Question, len(questions))
		for _, question := range questions {
			byID[question.ID] = question
		}

		reordered = make([]models.Question, 0, len(questions))
		for _, id := range payload.QuestionIDs {
			question, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: question %d is not part of the assignment or is listed twice", ErrInvalidQuestion, id)
			}
			delete(byID, id)
			reordered = append(reordered, question)
		}

		reordered = renumber(reordered)
		return repo.SaveAll(ctx, reordered)
	})
	if err != nil {
		return nil, err
	}

	notifyQuestionsChanged(ctx, s.notifier, s.logger, assignmentID)
	recordActivity(ctx, s.activity, s.logger, actor, "question.reordered", "assignment", uintPtr(assignmentID), nil)

	return dto.NewQuestionResponseSlice(reordered), nil
}

func (s *questionService) loadAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *questionService) applyCreate(question *models.Question, payload dto.QuestionCreateRequest) {
	question.Type = payload.Type
	question.Content = s.clean(payload.Content)
	question.ImageURL = strings.TrimSpace(payload.ImageURL)
	question.CorrectAnswer = strings.ToUpper(strings.TrimSpace(payload.CorrectAnswer))
	s.applyOptions(question, payload.Options)
}

func (s *questionService) applyUpdate(question *models.Question, payload dto.QuestionUpdateRequest) {
	if payload.Type != nil {
		question.Type = *payload.Type
	}
	if payload.Content != nil {
		question.Content = s.clean(*payload.Content)
	}
	if payload.ImageURL != nil {
		question.ImageURL = strings.TrimSpace(*payload.ImageURL)
	}
	if payload.Options != nil || question.Type != models.QuestionTypeMultipleChoice {
		s.applyOptions(question, payload.Options)
	}
	if payload.CorrectAnswer != nil {
		question.CorrectAnswer = strings.ToUpper(strings.TrimSpace(*payload.CorrectAnswer))
	}
	if question.Type != models.QuestionTypeMultipleChoice {
		question.CorrectAnswer = ""
	}
}

func (s *questionService) applyOptions(question *models.Question, options map[string]string) {
	if question.Type != models.QuestionTypeMultipleChoice {
		options = nil
	}
	question.OptionA = s.clean(options["A"])
	question.OptionB = s.clean(options["B"])
	question.OptionC = s.clean(options["C"])
	question.OptionD = s.clean(options["D"])
}

func (s *questionService) clean(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}

// validateQuestion enforces per-type consistency.
func validateQuestion(question models.Question) error {
	switch question.Type {
	case models.QuestionTypeMultipleChoice:
		filled := 0
		for _, key := range models.ChoiceKeys {
			if question.Option(key) != "" {
				filled++
			}
		}
		if filled < 2 {
			return fmt.Errorf("%w: multiple choice questions need at least two options", ErrInvalidQuestion)
		}
		if question.CorrectAnswer == "" || question.Option(question.CorrectAnswer) == "" {
			return fmt.Errorf("%w: correct answer must reference a non-empty option", ErrInvalidQuestion)
		}
	case models.QuestionTypeEssay, models.QuestionTypeSection:
		if question.CorrectAnswer != "" {
			return fmt.Errorf("%w: only multiple choice questions have an answer key", ErrInvalidQuestion)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, question.Type)
	}

	if strings.TrimSpace(question.Content) == "" && question.ImageURL == "" {
		return fmt.Errorf("%w: content or image is required", ErrInvalidQuestion)
	}

	return nil
}

// insertAt places question at the 1-based position, or at the end when position is nil or out
// of range.
func insertAt(questions []models.Question, question models.Question, position *int) []models.Question {
	if position == nil || *position > len(questions) {
		return append(questions, question)
	}

	idx := *position - 1
	if idx < 0 {
		idx = 0
	}
	questions = append(questions, models.Question{})
	copy(questions[idx+1:], questions[idx:])
	questions[idx] = question
	return questions
}

func renumber(questions []models.Question) []models.Question {
	for i := range questions {
		questions[i].Position = i + 1
	}
	return questions
}

func notifyQuestionsChanged(ctx context.Context, notifier QuestionChangeNotifier, logger zerolog.Logger, assignmentID uint) {
	if notifier == nil {
		return
	}
	if err := notifier.NotifyQuestionsChanged(ctx, assignmentID); err != nil {
		logger.Warn().Err(err).Uint("assignment_id", assignmentID).Msg("failed to broadcast question change")
	}
}
