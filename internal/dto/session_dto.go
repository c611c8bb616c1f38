package dto

import (
	"time"

	"github.com/noah-isme/gema-quiz-api/internal/models"
)

// Exit modes offered when a student leaves an attempt.
const (
	ExitModeKeep    = "keep"
	ExitModeDiscard = "discard"
)

// SessionCreateRequest starts a new attempt.
type SessionCreateRequest struct {
	AssignmentID uint   `json:"assignmentId" validate:"required,gt=0"`
	StudentName  string `json:"studentName" validate:"required,min=1,max=255"`
}

// SessionStatusRequest updates the status of an attempt.
type SessionStatusRequest struct {
	SessionID uint   `json:"sessionId" validate:"required,gt=0"`
	Status    string `json:"status" validate:"required,oneof=active exited submitted"`
}

// SessionLookupRequest locates an incomplete attempt for resume.
type SessionLookupRequest struct {
	AssignmentID uint   `query:"assignmentId" validate:"required,gt=0"`
	StudentName  string `query:"studentName" validate:"required,min=1,max=255"`
}

// SessionExitRequest resolves an explicit exit from an attempt.
type SessionExitRequest struct {
	Mode string `json:"mode" validate:"required,oneof=keep discard"`
}

// DraftSaveRequest carries the full draft answer map.
type DraftSaveRequest struct {
	DraftAnswers map[string]string `json:"draftAnswers" validate:"required,dive,keys,required,max=32,endkeys,max=20000"`
}

// SessionResponse serializes a student session.
type SessionResponse struct {
	ID             uint              `json:"id"`
	AssignmentID   uint              `json:"assignmentId"`
	StudentName    string            `json:"studentName"`
	Status         string            `json:"status"`
	StartedAt      time.Time         `json:"startedAt"`
	LastActivityAt time.Time         `json:"lastActivityAt"`
	DeadlineAt     *time.Time        `json:"deadlineAt"`
	DraftAnswers   map[string]string `json:"draftAnswers"`
	ExitCount      int               `json:"exitCount"`
	SubmissionID   *uint             `json:"submissionId"`
}

// SessionCreateResponse is returned when a session is created.
type SessionCreateResponse struct {
	SessionID  uint       `json:"sessionId"`
	DeadlineAt *time.Time `json:"deadlineAt"`
}

// SessionLookupResponse reports whether an incomplete session exists.
type SessionLookupResponse struct {
	HasIncomplete bool             `json:"hasIncomplete"`
	Session       *SessionResponse `json:"session,omitempty"`
}

// DeadlineCheckResponse reports the remaining time for an attempt.
// RemainingSeconds is -1 for untimed attempts.
type DeadlineCheckResponse struct {
	Expired          bool       `json:"expired"`
	RemainingSeconds int64      `json:"remainingSeconds"`
	DeadlineAt       *time.Time `json:"deadlineAt"`
	AutoSubmitted    bool       `json:"autoSubmitted"`
	SubmissionID     *uint      `json:"submissionId,omitempty"`
}

// DraftResponse returns the stored draft answers.
type DraftResponse struct {
	DraftAnswers map[string]string `json:"draftAnswers"`
	Source       string            `json:"source"`
}

// DraftSaveResponse acknowledges a draft write. Degraded is true when only the cache tier
// accepted the write.
type DraftSaveResponse struct {
	Success  bool `json:"success"`
	Degraded bool `json:"degraded"`
}

// LiveSessionResponse is the admin liveness view of a session.
type LiveSessionResponse struct {
	SessionResponse
	RecentlyActive bool  `json:"recentlyActive"`
	IdleSeconds    int64 `json:"idleSeconds"`
}

// NewSessionResponse converts a model into a DTO.
func NewSessionResponse(model models.StudentSession) SessionResponse {
	return SessionResponse{
		ID:             model.ID,
		AssignmentID:   model.AssignmentID,
		StudentName:    model.StudentName,
		Status:         model.Status,
		StartedAt:      model.StartedAt,
		LastActivityAt: model.LastActivityAt,
		DeadlineAt:     model.DeadlineAt,
		DraftAnswers:   model.Drafts(),
		ExitCount:      model.ExitCount,
		SubmissionID:   model.SubmissionID,
	}
}
