package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/models"
	"github.com/noah-isme/gema-quiz-api/internal/observability"
	"github.com/noah-isme/gema-quiz-api/internal/repository"
)

var (
	// ErrSubmissionNotFound indicates the requested submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrAnswerNotFound indicates the requested answer does not exist.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrSessionMismatch indicates the session belongs to a different assignment.
	ErrSessionMismatch = errors.New("session does not belong to assignment")
	// ErrAutoSubmitInProgress indicates another caller holds the auto-submit latch.
	ErrAutoSubmitInProgress = errors.New("auto submission already in progress")
	// ErrSessionNotExpired indicates an auto submission was requested before the deadline.
	ErrSessionNotExpired = errors.New("session deadline has not passed")
	// ErrInvalidGrade indicates a manual grade outside the question's point range.
	ErrInvalidGrade = errors.New("invalid grade")
)

const autoSubmitLatchTTL = 24 * time.Hour

// AutoSubmitter force-submits an expired session from its stored drafts.
type AutoSubmitter interface {
	AutoSubmit(ctx context.Context, sessionID uint) (dto.SubmitResponse, error)
}

// SubmissionService grades attempts and exposes results to students and administrators.
type SubmissionService interface {
	AutoSubmitter
	Submit(ctx context.Context, payload dto.SubmissionCreateRequest) (dto.SubmitResponse, error)
	Get(ctx context.Context, id uint) (dto.SubmissionResponse, error)
	List(ctx context.Context, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error)
	History(ctx context.Context, filter dto.SubmissionFilter) (dto.SubmissionHistoryResponse, error)
	Regrade(ctx context.Context, answerID uint, payload dto.AnswerGradeRequest, actor ActivityActor) (dto.SubmissionResponse, error)
	Delete(ctx context.Context, id uint, actor ActivityActor) error
	ExportCSV(ctx context.Context, assignmentID uint, w io.Writer) error
}

type submissionService struct {
	questions repository.QuestionRepository
	sessions  repository.SessionRepository
	repo      repository.SubmissionRepository
	latch     Latch
	validator *validator.Validate
	names     NameSanitizer
	activity  ActivityRecorder
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type gradeRequest struct {
	assignmentID uint
	studentName  string
	sessionID    *uint
	answers      map[string]string
	duration     int
	auto         bool
}

// NewSubmissionService constructs the grading engine.
func NewSubmissionService(questions repository.QuestionRepository, sessions repository.SessionRepository, repo repository.SubmissionRepository, latch Latch, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) SubmissionService {
	if latch == nil {
		latch = NewLatch(nil)
	}
	return &submissionService{
		questions: questions,
		sessions:  sessions,
		repo:      repo,
		latch:     latch,
		validator: validate,
		names:     NewNameSanitizer(),
		activity:  activity,
		logger:    logger.With().Str("component", "submission_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-quiz-api/internal/service/submission"),
		now:       time.Now,
	}
}

func (s *submissionService) Submit(ctx context.Context, payload dto.SubmissionCreateRequest) (dto.SubmitResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmitResponse{}, err
	}

	name := s.names.Clean(payload.StudentName)
	if name == "" {
		return dto.SubmitResponse{}, ErrStudentNameRequired
	}

	request := gradeRequest{
		assignmentID: payload.AssignmentID,
		studentName:  name,
		sessionID:    payload.SessionID,
		answers:      payload.Answers,
		duration:     payload.DurationSeconds,
		auto:         payload.IsAutoSubmit,
	}

	if payload.SessionID == nil {
		return s.grade(ctx, request)
	}

	session, err := s.loadSession(ctx, *payload.SessionID)
	if err != nil {
		return dto.SubmitResponse{}, err
	}
	if session.AssignmentID != payload.AssignmentID {
		return dto.SubmitResponse{}, ErrSessionMismatch
	}

	if !payload.IsAutoSubmit {
		return s.grade(ctx, request)
	}

	return s.gradeOnce(ctx, session, request)
}

func (s *submissionService) AutoSubmit(ctx context.Context, sessionID uint) (dto.SubmitResponse, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return dto.SubmitResponse{}, err
	}

	if session.IsSubmitted() || session.SubmissionID != nil {
		return s.existingResult(ctx, session)
	}
	if !session.IsExpired(s.now()) {
		return dto.SubmitResponse{}, ErrSessionNotExpired
	}

	duration := int(session.DeadlineAt.Sub(session.StartedAt) / time.Second)
	return s.gradeOnce(ctx, session, gradeRequest{
		assignmentID: session.AssignmentID,
		studentName:  session.StudentName,
		sessionID:    &session.ID,
		answers:      session.Drafts(),
		duration:     duration,
		auto:         true,
	})
}

// gradeOnce guards forced submissions with the per-session latch so retries and concurrent
// pollers produce a single graded submission.
func (s *submissionService) gradeOnce(ctx context.Context, session models.StudentSession, request gradeRequest) (dto.SubmitResponse, error) {
	key := autoSubmitLatchKey(session.ID)
	acquired, err := s.latch.Acquire(ctx, key, autoSubmitLatchTTL)
	if err != nil {
		return dto.SubmitResponse{}, fmt.Errorf("acquire auto submit latch: %w", err)
	}
	if !acquired {
		current, err := s.loadSession(ctx, session.ID)
		if err != nil {
			return dto.SubmitResponse{}, err
		}
		if current.SubmissionID != nil {
			return s.existingResult(ctx, current)
		}
		return dto.SubmitResponse{}, ErrAutoSubmitInProgress
	}

	response, err := s.grade(ctx, request)
	if errors.Is(err, ErrSessionSubmitted) {
		current, loadErr := s.loadSession(ctx, session.ID)
		if loadErr != nil {
			return dto.SubmitResponse{}, loadErr
		}
		s.logger.Info().Uint("session_id", session.ID).Msg("session submitted before auto submission finished")
		return s.existingResult(ctx, current)
	}
	if err != nil {
		if releaseErr := s.latch.Release(ctx, key); releaseErr != nil {
			s.logger.Warn().Err(releaseErr).Uint("session_id", session.ID).Msg("failed to release auto submit latch")
		}
		return dto.SubmitResponse{}, err
	}

	observability.AutoSubmissions().Inc()
	return response, nil
}

func (s *submissionService) grade(ctx context.Context, request gradeRequest) (dto.SubmitResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.grade", trace.WithAttributes(
		attribute.Int("submission.assignment_id", int(request.assignmentID)),
		attribute.Bool("submission.auto", request.auto),
	))
	defer span.End()

	questions, err := s.questions.ListByAssignment(ctx, request.assignmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list_questions_failed")
		return dto.SubmitResponse{}, err
	}
	if len(questions) == 0 {
		span.SetStatus(codes.Error, "assignment_not_found")
		return dto.SubmitResponse{}, ErrAssignmentNotFound
	}

	answers, awarded, possible := GradeAnswers(questions, request.answers)
	score := NormalizeScore(awarded, possible)

	submission := &models.Submission{
		AssignmentID:    request.assignmentID,
		StudentName:     request.studentName,
		SubmittedAt:     s.now().UTC(),
		DurationSeconds: request.duration,
		Status:          models.SubmissionStatusScored,
		Score:           score,
		AutoSubmitted:   request.auto,
	}

	err = s.repo.SaveGraded(ctx, repository.GradedSubmission{
		Submission:      submission,
		Answers:         answers,
		SessionID:       request.sessionID,
		OpenSessionOnly: request.auto,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist_failed")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmitResponse{}, ErrSessionNotFound
		}
		if errors.Is(err, repository.ErrSessionLocked) {
			return dto.SubmitResponse{}, ErrSessionSubmitted
		}
		s.logger.Error().Err(err).Uint("assignment_id", request.assignmentID).Msg("failed to persist graded submission")
		return dto.SubmitResponse{}, err
	}

	mode := "manual"
	if request.auto {
		mode = "auto"
	}
	observability.SubmissionsGraded().WithLabelValues(mode).Inc()
	observability.SubmissionScores().Observe(score)
	span.SetAttributes(
		attribute.Float64("submission.score", score),
		attribute.Int("submission.answers", len(answers)),
	)

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("assignment_id", request.assignmentID).
		Float64("score", score).
		Bool("auto", request.auto).
		Msg("submission graded")

	return dto.SubmitResponse{SubmissionID: submission.ID, Score: score}, nil
}

func (s *submissionService) Get(ctx context.Context, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) List(ctx context.Context, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	submissions, err := s.repo.List(ctx, s.repoFilter(filter))
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) History(ctx context.Context, filter dto.SubmissionFilter) (dto.SubmissionHistoryResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return dto.SubmissionHistoryResponse{}, err
	}

	repoFilter := s.repoFilter(filter)
	submissions, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return dto.SubmissionHistoryResponse{}, err
	}

	attempts, err := s.repo.ListAttempts(ctx, repoFilter)
	if err != nil {
		return dto.SubmissionHistoryResponse{}, err
	}

	history := dto.SubmissionHistoryResponse{
		Submissions: dto.NewSubmissionResponseSlice(submissions),
		Attempts:    make([]dto.SubmissionAttemptResponse, 0, len(attempts)),
	}
	for _, attempt := range attempts {
		history.Attempts = append(history.Attempts, dto.NewSubmissionAttemptResponse(attempt))
	}

	return history, nil
}

func (s *submissionService) Regrade(ctx context.Context, answerID uint, payload dto.AnswerGradeRequest, actor ActivityActor) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	answer, err := s.repo.GetAnswer(ctx, answerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrAnswerNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	question := answer.Question
	if !question.IsGradable() {
		return dto.SubmissionResponse{}, fmt.Errorf("%w: question is not gradable", ErrInvalidGrade)
	}
	points := roundScore(payload.Points)
	if points > question.Points {
		return dto.SubmissionResponse{}, fmt.Errorf("%w: points exceed the question value %.2f", ErrInvalidGrade, question.Points)
	}

	submission, err := s.repo.GetByID(ctx, answer.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	questions, err := s.questions.ListByAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	possible := 0.0
	for _, item := range questions {
		if item.IsGradable() {
			possible += item.Points
		}
	}

	awarded := points
	for _, existing := range submission.Answers {
		if existing.ID != answer.ID {
			awarded += existing.PointsAwarded
		}
	}

	correct := question.Points > 0 && points >= question.Points
	answer.IsCorrect = &correct
	answer.PointsAwarded = points
	score := NormalizeScore(awarded, possible)

	if err := s.repo.UpdateAnswerScore(ctx, answer, score); err != nil {
		return dto.SubmissionResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, actor, "answer.regraded", "submission", uintPtr(submission.ID), map[string]interface{}{
		"answer_id": answer.ID,
		"points":    points,
		"score":     score,
	})

	return s.Get(ctx, submission.ID)
}

func (s *submissionService) Delete(ctx context.Context, id uint, actor ActivityActor) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	s.logger.Info().Uint("submission_id", id).Msg("submission deleted")
	recordActivity(ctx, s.activity, s.logger, actor, "submission.deleted", "submission", uintPtr(id), nil)
	return nil
}

// ExportCSV writes one row per submission with the raw answer for every gradable question.
func (s *submissionService) ExportCSV(ctx context.Context, assignmentID uint, w io.Writer) error {
	questions, err := s.questions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}

	submissions, err := s.repo.List(ctx, repository.SubmissionFilter{AssignmentID: &assignmentID})
	if err != nil {
		return err
	}

	gradable := make([]models.Question, 0, len(questions))
	header := []string{"student_name", "score", "duration_seconds", "submitted_at", "auto_submitted"}
	for _, question := range questions {
		if question.IsGradable() {
			gradable = append(gradable, question)
			header = append(header, fmt.Sprintf("q%d", question.Position))
		}
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, submission := range submissions {
		byQuestion := make(map[uint]string, len(submission.Answers))
		for _, answer := range submission.Answers {
			byQuestion[answer.QuestionID] = answer.Answer
		}

		row := []string{
			submission.StudentName,
			strconv.FormatFloat(submission.Score, 'f', 2, 64),
			strconv.Itoa(submission.DurationSeconds),
			submission.SubmittedAt.UTC().Format(time.RFC3339),
			strconv.FormatBool(submission.AutoSubmitted),
		}
		for _, question := range gradable {
			row = append(row, byQuestion[question.ID])
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func (s *submissionService) existingResult(ctx context.Context, session models.StudentSession) (dto.SubmitResponse, error) {
	if session.SubmissionID == nil {
		return dto.SubmitResponse{}, ErrSubmissionNotFound
	}

	submission, err := s.repo.GetByID(ctx, *session.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmitResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmitResponse{}, err
	}

	return dto.SubmitResponse{SubmissionID: submission.ID, Score: submission.Score}, nil
}

func (s *submissionService) loadSession(ctx context.Context, id uint) (models.StudentSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.StudentSession{}, ErrSessionNotFound
		}
		return models.StudentSession{}, err
	}
	return session, nil
}

func (s *submissionService) repoFilter(filter dto.SubmissionFilter) repository.SubmissionFilter {
	result := repository.SubmissionFilter{AssignmentID: filter.AssignmentID}
	if filter.StudentName != nil {
		name := s.names.Clean(*filter.StudentName)
		result.StudentName = &name
	}
	return result
}

func autoSubmitLatchKey(sessionID uint) string {
	return fmt.Sprintf("session:%d:autosubmit", sessionID)
}
