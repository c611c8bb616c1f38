package dto

import (
	"time"

	"github.com/noah-isme/gema-quiz-api/internal/models"
)

// SubmissionCreateRequest submits an attempt for grading. Answers are keyed by question id.
type SubmissionCreateRequest struct {
	AssignmentID    uint              `json:"assignmentId" validate:"required,gt=0"`
	StudentName     string            `json:"studentName" validate:"required,min=1,max=255"`
	SessionID       *uint             `json:"sessionId" validate:"omitempty,gt=0"`
	Answers         map[string]string `json:"answers" validate:"omitempty,dive,keys,required,max=32,endkeys,max=20000"`
	DurationSeconds int               `json:"durationSeconds" validate:"gte=0"`
	IsAutoSubmit    bool              `json:"isAutoSubmit"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	AssignmentID *uint   `query:"assignmentId"`
	StudentName  *string `query:"studentName" validate:"omitempty,min=1,max=255"`
}

// AnswerGradeRequest is used by administrators to manually grade an answer.
type AnswerGradeRequest struct {
	Points float64 `json:"points" validate:"gte=0"`
}

// SubmitResponse is returned after grading.
type SubmitResponse struct {
	SubmissionID uint    `json:"submissionId"`
	Score        float64 `json:"score"`
}

// AnswerResponse serializes a graded answer.
type AnswerResponse struct {
	ID            uint    `json:"id"`
	QuestionID    uint    `json:"questionId"`
	Answer        string  `json:"answer"`
	IsCorrect     *bool   `json:"isCorrect"`
	PointsAwarded float64 `json:"pointsAwarded"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID              uint             `json:"id"`
	AssignmentID    uint             `json:"assignmentId"`
	AssignmentTitle string           `json:"assignmentTitle,omitempty"`
	StudentName     string           `json:"studentName"`
	SubmittedAt     time.Time        `json:"submittedAt"`
	DurationSeconds int              `json:"durationSeconds"`
	Status          string           `json:"status"`
	Score           float64          `json:"score"`
	AutoSubmitted   bool             `json:"autoSubmitted"`
	Answers         []AnswerResponse `json:"answers"`
}

// SubmissionAttemptResponse serializes one entry of a student's attempt history.
type SubmissionAttemptResponse struct {
	ID              uint      `json:"id"`
	AssignmentID    uint      `json:"assignmentId"`
	StudentName     string    `json:"studentName"`
	SubmissionID    uint      `json:"submissionId"`
	Score           float64   `json:"score"`
	DurationSeconds int       `json:"durationSeconds"`
	AutoSubmitted   bool      `json:"autoSubmitted"`
	SubmittedAt     time.Time `json:"submittedAt"`
}

// SubmissionHistoryResponse wraps the current submissions and the attempt history.
type SubmissionHistoryResponse struct {
	Submissions []SubmissionResponse        `json:"submissions"`
	Attempts    []SubmissionAttemptResponse `json:"attempts"`
}

// NewAnswerResponse converts an answer model into a DTO.
func NewAnswerResponse(model models.Answer) AnswerResponse {
	return AnswerResponse{
		ID:            model.ID,
		QuestionID:    model.QuestionID,
		Answer:        model.Answer,
		IsCorrect:     model.IsCorrect,
		PointsAwarded: model.PointsAwarded,
	}
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:              model.ID,
		AssignmentID:    model.AssignmentID,
		StudentName:     model.StudentName,
		SubmittedAt:     model.SubmittedAt,
		DurationSeconds: model.DurationSeconds,
		Status:          model.Status,
		Score:           model.Score,
		AutoSubmitted:   model.AutoSubmitted,
		Answers:         make([]AnswerResponse, 0, len(model.Answers)),
	}

	if model.Assignment.ID != 0 {
		response.AssignmentTitle = model.Assignment.Title
	}

	for _, answer := range model.Answers {
		response.Answers = append(response.Answers, NewAnswerResponse(answer))
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}

// NewSubmissionAttemptResponse converts an attempt summary into a DTO.
func NewSubmissionAttemptResponse(model models.SubmissionAttempt) SubmissionAttemptResponse {
	return SubmissionAttemptResponse{
		ID:              model.ID,
		AssignmentID:    model.AssignmentID,
		StudentName:     model.StudentName,
		SubmissionID:    model.SubmissionID,
		Score:           model.Score,
		DurationSeconds: model.DurationSeconds,
		AutoSubmitted:   model.AutoSubmitted,
		SubmittedAt:     model.SubmittedAt,
	}
}
