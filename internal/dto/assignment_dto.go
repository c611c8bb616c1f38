package dto

import (
	"time"

	"github.com/noah-isme/gema-quiz-api/internal/models"
)

// AssignmentListRequest describes filters for listing assignments.
type AssignmentListRequest struct {
	Page          int
	PageSize      int
	Search        string
	Subject       string
	Sort          string
	IncludeHidden bool
}

// AssignmentCreateRequest describes the payload for creating an assignment.
type AssignmentCreateRequest struct {
	Title           string   `json:"title" validate:"required,min=1,max=255"`
	Subject         string   `json:"subject" validate:"omitempty,max=128"`
	Grade           string   `json:"grade" validate:"omitempty,max=64"`
	DueAt           *string  `json:"dueAt" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	DurationMinutes *int     `json:"durationMinutes" validate:"omitempty,gte=0,lte=1440"`
	TotalScore      *float64 `json:"totalScore" validate:"omitempty,gt=0,lte=1000"`
	Hidden          bool     `json:"hidden"`
}

// AssignmentUpdateRequest describes a partial assignment update.
type AssignmentUpdateRequest struct {
	Title           *string  `json:"title" validate:"omitempty,min=1,max=255"`
	Subject         *string  `json:"subject" validate:"omitempty,max=128"`
	Grade           *string  `json:"grade" validate:"omitempty,max=64"`
	DueAt           *string  `json:"dueAt" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	ClearDueAt      bool     `json:"clearDueAt"`
	DurationMinutes *int     `json:"durationMinutes" validate:"omitempty,gte=0,lte=1440"`
	TotalScore      *float64 `json:"totalScore" validate:"omitempty,gt=0,lte=1000"`
	Hidden          *bool    `json:"hidden"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID              uint       `json:"id"`
	Title           string     `json:"title"`
	Subject         string     `json:"subject"`
	Grade           string     `json:"grade"`
	DueAt           *time.Time `json:"dueAt"`
	DurationMinutes *int       `json:"durationMinutes"`
	TotalScore      float64    `json:"totalScore"`
	Hidden          bool       `json:"hidden"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// AssignmentListResponse wraps a paginated assignment list.
type AssignmentListResponse struct {
	Items      []AssignmentResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// NewAssignmentResponse converts a model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:              model.ID,
		Title:           model.Title,
		Subject:         model.Subject,
		Grade:           model.Grade,
		DueAt:           model.DueAt,
		DurationMinutes: model.DurationMinutes,
		TotalScore:      model.TotalScore,
		Hidden:          model.Hidden,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment))
	}

	return responses
}
