package models

import "time"

const (
	// SubmissionStatusPending indicates the submission row exists but grading has not completed.
	SubmissionStatusPending = "pending"
	// SubmissionStatusScored indicates the submission has been graded.
	SubmissionStatusScored = "scored"
)

// Submission is the graded record for an (assignment, student name) pair.
// Resubmitting overwrites the row instead of creating a new one.
type Submission struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	AssignmentID    uint       `gorm:"not null;uniqueIndex:idx_submission_owner" json:"assignment_id"`
	StudentName     string     `gorm:"size:255;not null;uniqueIndex:idx_submission_owner" json:"student_name"`
	SubmittedAt     time.Time  `gorm:"not null" json:"submitted_at"`
	DurationSeconds int        `gorm:"not null;default:0" json:"duration_seconds"`
	Status          string     `gorm:"size:16;not null" json:"status"`
	Score           float64    `gorm:"not null;default:0" json:"score"`
	AutoSubmitted   bool       `gorm:"not null;default:false" json:"auto_submitted"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Assignment      Assignment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Answers         []Answer   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"answers,omitempty"`
}

// IsScored reports whether the submission has a final score.
func (s Submission) IsScored() bool {
	return s.Status == SubmissionStatusScored
}

// Answer stores a single graded response.
type Answer struct {
	ID            uint     `gorm:"primaryKey" json:"id"`
	SubmissionID  uint     `gorm:"not null;index" json:"submission_id"`
	QuestionID    uint     `gorm:"not null;index" json:"question_id"`
	Answer        string   `gorm:"type:text" json:"answer"`
	IsCorrect     *bool    `json:"is_correct"`
	PointsAwarded float64  `gorm:"not null;default:0" json:"points_awarded"`
	Question      Question `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// SubmissionAttempt is an append-only summary written on every submit call.
type SubmissionAttempt struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	AssignmentID    uint      `gorm:"not null;index" json:"assignment_id"`
	StudentName     string    `gorm:"size:255;not null;index" json:"student_name"`
	SubmissionID    uint      `gorm:"not null;index" json:"submission_id"`
	Score           float64   `gorm:"not null" json:"score"`
	DurationSeconds int       `gorm:"not null" json:"duration_seconds"`
	AutoSubmitted   bool      `gorm:"not null;default:false" json:"auto_submitted"`
	SubmittedAt     time.Time `gorm:"not null" json:"submitted_at"`
}
