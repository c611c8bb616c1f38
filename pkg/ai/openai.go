package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultQuestionCount = 10

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quiz",
		Subsystem: "ai",
		Name:      "generation_duration_seconds",
		Help:      "Duration of AI question generation requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz",
		Subsystem: "ai",
		Name:      "generation_failures_total",
		Help:      "Number of AI question generation failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI generator.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIGenerator implements Generator against the OpenAI chat completion API.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGenerator builds a new generator using the provided configuration.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	tracer := otel.Tracer("github.com/noah-isme/gema-quiz-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(config)

	return &OpenAIGenerator{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger.With().Str("component", "openai_generator").Logger(),
	}, nil
}

// GenerateQuestions sends the source material to OpenAI and parses the suggested questions.
func (g *OpenAIGenerator) GenerateQuestions(parent context.Context, input GenerationInput) ([]GeneratedQuestion, error) {
	ctx, span := g.tracer.Start(parent, "openai.generate_questions", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int("input.images", len(input.Images)),
		attribute.Int("input.text_length", len(input.Text)),
	))
	defer span.End()

	if strings.TrimSpace(input.Text) == "" && len(input.Images) == 0 {
		err := fmt.Errorf("text or images are required")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: generatorSystemPrompt(),
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: buildUserParts(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := g.client.CreateChatCompletion(ctx, request)
	duration := time.Since(start)
	aiDuration.WithLabelValues(g.cfg.Model).Observe(duration.Seconds())
	if err != nil {
		aiFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("openai generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		aiFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	questions, err := ParseGeneratedQuestions(content)
	if err != nil {
		aiFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("output.questions", len(questions)))
	g.logger.Debug().Int("questions", len(questions)).Dur("duration", duration).Msg("questions generated")

	return questions, nil
}

func generatorSystemPrompt() string {
	return "You write multiple-choice quiz questions from study material. Respond with a JSON object " +
		"{\"questions\":[{\"question\":string,\"options\":{\"A\":string,\"B\":string,\"C\":string,\"D\":string},\"correct_answer\":\"A\"|\"B\"|\"C\"|\"D\"}]}. " +
		"Keep the language of the source material. Every question must have exactly one correct option."
}

func buildUserParts(input GenerationInput) []openai.ChatMessagePart {
	count := input.Count
	if count <= 0 {
		count = defaultQuestionCount
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("Write %d questions.", count))
	if input.Language != "" {
		builder.WriteString(" Language: ")
		builder.WriteString(input.Language)
		builder.WriteString(".")
	}
	if text := strings.TrimSpace(input.Text); text != "" {
		builder.WriteString("\n\n## Material\n")
		builder.WriteString(text)
	}
	builder.WriteString("\nReturn JSON.")

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: builder.String()}}
	for _, image := range input.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + image.MimeType + ";base64," + base64.StdEncoding.EncodeToString(image.Data),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	return parts
}

// ParseGeneratedQuestions decodes the model output and drops malformed questions.
func ParseGeneratedQuestions(content string) ([]GeneratedQuestion, error) {
	type payload struct {
		Questions []GeneratedQuestion `json:"questions"`
	}

	var data payload
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return nil, fmt.Errorf("parse generation json: %w", err)
	}

	questions := make([]GeneratedQuestion, 0, len(data.Questions))
	for _, question := range data.Questions {
		question.Question = strings.TrimSpace(question.Question)
		question.CorrectAnswer = strings.ToUpper(strings.TrimSpace(question.CorrectAnswer))
		if question.Question == "" {
			continue
		}
		if strings.TrimSpace(question.Options[question.CorrectAnswer]) == "" {
			continue
		}
		questions = append(questions, question)
	}

	if len(questions) == 0 {
		return nil, fmt.Errorf("no usable questions in generation output")
	}

	return questions, nil
}
