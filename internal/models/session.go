package models

import (
	"time"

	"gorm.io/datatypes"
)

// Session statuses.
const (
	SessionStatusActive    = "active"
	SessionStatusExited    = "exited"
	SessionStatusSubmitted = "submitted"
)

// StudentSession is one student's attempt at an assignment.
type StudentSession struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	AssignmentID   uint              `gorm:"not null;index:idx_session_lookup" json:"assignment_id"`
	StudentName    string            `gorm:"size:255;not null;index:idx_session_lookup" json:"student_name"`
	Status         string            `gorm:"size:16;not null;index" json:"status"`
	StartedAt      time.Time         `gorm:"not null" json:"started_at"`
	LastActivityAt time.Time         `gorm:"not null" json:"last_activity_at"`
	DeadlineAt     *time.Time        `gorm:"index" json:"deadline_at"`
	DraftAnswers   datatypes.JSONMap `gorm:"type:json" json:"draft_answers"`
	ExitCount      int               `gorm:"not null;default:0" json:"exit_count"`
	SubmissionID   *uint             `json:"submission_id"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Assignment     Assignment        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsSubmitted reports whether the session reached its terminal state.
func (s StudentSession) IsSubmitted() bool {
	return s.Status == SessionStatusSubmitted
}

// IsExpired reports whether a timed session passed its deadline.
func (s StudentSession) IsExpired(reference time.Time) bool {
	return s.DeadlineAt != nil && !reference.Before(*s.DeadlineAt)
}

// Drafts returns the draft answers as a string map.
func (s StudentSession) Drafts() map[string]string {
	drafts := make(map[string]string, len(s.DraftAnswers))
	for key, value := range s.DraftAnswers {
		if str, ok := value.(string); ok {
			drafts[key] = str
		}
	}
	return drafts
}

// DraftMap converts a string map into the JSON column representation.
func DraftMap(drafts map[string]string) datatypes.JSONMap {
	result := datatypes.JSONMap{}
	for key, value := range drafts {
		result[key] = value
	}
	return result
}
