package models

import "time"

// DefaultTotalScore is the total score assigned to assignments created without one.
const DefaultTotalScore = 10.0

// Assignment represents a quiz or worksheet authored by an administrator.
type Assignment struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"size:255;not null" json:"title"`
	Subject         string     `gorm:"size:128" json:"subject"`
	Grade           string     `gorm:"size:64" json:"grade"`
	DueAt           *time.Time `json:"due_at"`
	DurationMinutes *int       `json:"duration_minutes"`
	TotalScore      float64    `gorm:"not null;default:10" json:"total_score"`
	Hidden          bool       `gorm:"not null;default:false;index" json:"hidden"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Questions       []Question `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions,omitempty"`
}

// IsTimed reports whether attempts at the assignment run against a deadline.
func (a Assignment) IsTimed() bool {
	return a.DurationMinutes != nil && *a.DurationMinutes > 0
}

// Duration returns the attempt duration, zero when the assignment is untimed.
func (a Assignment) Duration() time.Duration {
	if !a.IsTimed() {
		return 0
	}
	return time.Duration(*a.DurationMinutes) * time.Minute
}

// IsPastDue returns true when the assignment due date has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return a.DueAt != nil && reference.After(*a.DueAt)
}
