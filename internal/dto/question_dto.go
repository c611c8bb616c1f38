package dto

import (
	"maps"

	"github.com/noah-isme/gema-quiz-api/internal/models"
)

// QuestionCreateRequest describes a new question.
type QuestionCreateRequest struct {
	Type          string            `json:"type" validate:"required,oneof=multiple_choice essay section"`
	Content       string            `json:"content" validate:"required,max=20000"`
	ImageURL      string            `json:"imageUrl" validate:"omitempty,url,max=512"`
	Options       map[string]string `json:"options" validate:"omitempty,dive,keys,oneof=A B C D,endkeys,max=2000"`
	CorrectAnswer string            `json:"correctAnswer" validate:"omitempty,oneof=A B C D"`
	Position      *int              `json:"position" validate:"omitempty,gte=1"`
}

// QuestionUpdateRequest describes a partial question update.
type QuestionUpdateRequest struct {
	Type          *string           `json:"type" validate:"omitempty,oneof=multiple_choice essay section"`
	Content       *string           `json:"content" validate:"omitempty,max=20000"`
	ImageURL      *string           `json:"imageUrl" validate:"omitempty,max=512"`
	Options       map[string]string `json:"options" validate:"omitempty,dive,keys,oneof=A B C D,endkeys,max=2000"`
	CorrectAnswer *string           `json:"correctAnswer" validate:"omitempty,oneof=A B C D"`
}

// QuestionReorderRequest lists question ids in their new order.
type QuestionReorderRequest struct {
	QuestionIDs []uint `json:"questionIds" validate:"required,min=1,dive,gt=0"`
}

// QuestionResponse is the admin view of a question, including the answer key.
type QuestionResponse struct {
	ID            uint              `json:"id"`
	AssignmentID  uint              `json:"assignmentId"`
	Position      int               `json:"position"`
	Type          string            `json:"type"`
	Content       string            `json:"content"`
	ImageURL      string            `json:"imageUrl,omitempty"`
	Options       map[string]string `json:"options,omitempty"`
	CorrectAnswer string            `json:"correctAnswer,omitempty"`
	Points        float64           `json:"points"`
}

// StudentQuestionResponse is the student view of a question; the answer key is never included.
type StudentQuestionResponse struct {
	ID       uint              `json:"id"`
	Position int               `json:"position"`
	Type     string            `json:"type"`
	Content  string            `json:"content"`
	ImageURL string            `json:"imageUrl,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
	Points   float64           `json:"points"`
}

// QuestionDiff lists ids that changed between two snapshots of an assignment's questions.
type QuestionDiff struct {
	Added   []uint `json:"added"`
	Removed []uint `json:"removed"`
	Updated []uint `json:"updated"`
}

// QuestionSyncResponse is returned by the question polling endpoint.
type QuestionSyncResponse struct {
	AssignmentID uint                      `json:"assignmentId"`
	Version      string                    `json:"version"`
	Changed      bool                      `json:"changed"`
	Questions    []StudentQuestionResponse `json:"questions,omitempty"`
	Diff         *QuestionDiff             `json:"diff,omitempty"`
}

// QuestionChangedEvent is broadcast to students when an assignment's questions change.
type QuestionChangedEvent struct {
	AssignmentID uint   `json:"assignmentId"`
	Version      string `json:"version"`
}

// NewQuestionResponse converts a model into the admin DTO.
func NewQuestionResponse(model models.Question) QuestionResponse {
	response := QuestionResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		Position:     model.Position,
		Type:         model.Type,
		Content:      model.Content,
		ImageURL:     model.ImageURL,
		Points:       model.Points,
	}
	if model.Type == models.QuestionTypeMultipleChoice {
		response.Options = model.Options()
		response.CorrectAnswer = model.CorrectAnswer
	}
	return response
}

// NewQuestionResponseSlice converts question models into admin DTOs.
func NewQuestionResponseSlice(questions []models.Question) []QuestionResponse {
	responses := make([]QuestionResponse, 0, len(questions))
	for _, question := range questions {
		responses = append(responses, NewQuestionResponse(question))
	}
	return responses
}

// NewStudentQuestionResponse converts a model into the student DTO.
func NewStudentQuestionResponse(model models.Question) StudentQuestionResponse {
	response := StudentQuestionResponse{
		ID:       model.ID,
		Position: model.Position,
		Type:     model.Type,
		Content:  model.Content,
		ImageURL: model.ImageURL,
		Points:   model.Points,
	}
	if model.Type == models.QuestionTypeMultipleChoice {
		response.Options = model.Options()
	}
	return response
}

// NewStudentQuestionResponseSlice converts question models into student DTOs.
func NewStudentQuestionResponseSlice(questions []models.Question) []StudentQuestionResponse {
	responses := make([]StudentQuestionResponse, 0, len(questions))
	for _, question := range questions {
		responses = append(responses, NewStudentQuestionResponse(question))
	}
	return responses
}

// DiffQuestions compares two snapshots by question id.
func DiffQuestions(previous, current []StudentQuestionResponse) QuestionDiff {
	diff := QuestionDiff{Added: []uint{}, Removed: []uint{}, Updated: []uint{}}

	before := make(map[uint]StudentQuestionResponse, len(previous))
	for _, question := range previous {
		before[question.ID] = question
	}

	for _, question := range current {
		old, ok := before[question.ID]
		if !ok {
			diff.Added = append(diff.Added, question.ID)
			continue
		}
		delete(before, question.ID)
		if !sameQuestion(old, question) {
			diff.Updated = append(diff.Updated, question.ID)
		}
	}

	for _, question := range previous {
		if _, ok := before[question.ID]; ok {
			diff.Removed = append(diff.Removed, question.ID)
		}
	}

	return diff
}

func sameQuestion(a, b StudentQuestionResponse) bool {
	return a.Position == b.Position &&
		a.Type == b.Type &&
		a.Content == b.Content &&
		a.ImageURL == b.ImageURL &&
		a.Points == b.Points &&
		maps.Equal(a.Options, b.Options)
}
