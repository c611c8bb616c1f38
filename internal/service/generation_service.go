package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/models"
	"github.com/noah-isme/gema-quiz-api/pkg/ai"
)

var (
	// ErrGeneratorUnavailable indicates AI generation is not configured.
	ErrGeneratorUnavailable = errors.New("question generator not configured")
	// ErrGenerationInput indicates the supplied material cannot be sent to the generator.
	ErrGenerationInput = errors.New("invalid generation input")
)

const maxGenerationFiles = 10

// GenerationService drafts multiple-choice questions from scanned material.
type GenerationService interface {
	Generate(ctx context.Context, assignmentID uint, payload dto.GenerateQuestionsRequest, files []*multipart.FileHeader, actor ActivityActor) (dto.GenerateQuestionsResponse, error)
}

type generationService struct {
	generator ai.Generator
	questions QuestionService
	validator *validator.Validate
	maxSize   int64
	logger    zerolog.Logger
}

// NewGenerationService constructs the generation service. A nil generator disables the feature.
func NewGenerationService(generator ai.Generator, questions QuestionService, validate *validator.Validate, maxSizeMB int, logger zerolog.Logger) GenerationService {
	if maxSizeMB <= 0 {
		maxSizeMB = 5
	}
	return &generationService{
		generator: generator,
		questions: questions,
		validator: validate,
		maxSize:   int64(maxSizeMB) * 1024 * 1024,
		logger:    logger.With().Str("component", "generation_service").Logger(),
	}
}

func (s *generationService) Generate(ctx context.Context, assignmentID uint, payload dto.GenerateQuestionsRequest, files []*multipart.FileHeader, actor ActivityActor) (dto.GenerateQuestionsResponse, error) {
	if s.generator == nil {
		return dto.GenerateQuestionsResponse{}, ErrGeneratorUnavailable
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.GenerateQuestionsResponse{}, err
	}
	if len(files) > maxGenerationFiles {
		return dto.GenerateQuestionsResponse{}, fmt.Errorf("%w: at most %d files are accepted", ErrGenerationInput, maxGenerationFiles)
	}

	input := ai.GenerationInput{Text: strings.TrimSpace(payload.Text), Count: payload.Count}
	for _, file := range files {
		if err := s.appendSource(&input, file); err != nil {
			return dto.GenerateQuestionsResponse{}, err
		}
	}

	if input.Text == "" && len(input.Images) == 0 {
		return dto.GenerateQuestionsResponse{}, fmt.Errorf("%w: text or image files are required", ErrGenerationInput)
	}

	generated, err := s.generator.GenerateQuestions(ctx, input)
	if err != nil {
		s.logger.Error().Err(err).Uint("assignment_id", assignmentID).Msg("question generation failed")
		return dto.GenerateQuestionsResponse{}, err
	}

	response := dto.GenerateQuestionsResponse{Questions: make([]dto.GeneratedQuestion, 0, len(generated))}
	requests := make([]dto.QuestionCreateRequest, 0, len(generated))
	for _, question := range generated {
		options := make(map[string]string, len(models.ChoiceKeys))
		for _, key := range models.ChoiceKeys {
			if value := strings.TrimSpace(question.Options[key]); value != "" {
				options[key] = value
			}
		}
		response.Questions = append(response.Questions, dto.GeneratedQuestion{
			Question:      question.Question,
			Options:       options,
			CorrectAnswer: question.CorrectAnswer,
		})
		requests = append(requests, dto.QuestionCreateRequest{
			Type:          models.QuestionTypeMultipleChoice,
			Content:       question.Question,
			Options:       options,
			CorrectAnswer: question.CorrectAnswer,
		})
	}

	if payload.Import {
		imported, err := s.questions.Import(ctx, assignmentID, requests, actor)
		if err != nil {
			return dto.GenerateQuestionsResponse{}, err
		}
		response.Imported = imported
	}

	s.logger.Info().Uint("assignment_id", assignmentID).Int("generated", len(generated)).Bool("imported", payload.Import).Msg("questions generated")
	return response, nil
}

func (s *generationService) appendSource(input *ai.GenerationInput, file *multipart.FileHeader) error {
	if file.Size > s.maxSize {
		return ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return err
	}
	defer handle.Close()

	data, err := io.ReadAll(io.LimitReader(handle, s.maxSize+1))
	if err != nil {
		return err
	}
	if int64(len(data)) > s.maxSize {
		return ErrUploadTooLarge
	}

	detected := mimetype.Detect(data)
	switch {
	case isAllowedImage(detected.String()):
		input.Images = append(input.Images, ai.SourceImage{MimeType: detected.String(), Data: data})
	case detected.Is("text/plain"):
		if input.Text != "" {
			input.Text += "\n\n"
		}
		input.Text += strings.TrimSpace(string(data))
	default:
		return ErrUploadTypeNotAllowed
	}

	return nil
}
