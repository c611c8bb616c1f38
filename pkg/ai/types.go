package ai

import "context"

// SourceImage is a scanned page passed to the generator.
type SourceImage struct {
	MimeType string
	Data     []byte
}

// GenerationInput contains the material questions are generated from.
type GenerationInput struct {
	Text     string
	Images   []SourceImage
	Count    int
	Language string
}

// GeneratedQuestion is one multiple-choice question suggested by the model.
type GeneratedQuestion struct {
	Question      string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correct_answer"`
}

// Generator describes an AI model capable of drafting quiz questions.
type Generator interface {
	GenerateQuestions(ctx context.Context, input GenerationInput) ([]GeneratedQuestion, error)
}
