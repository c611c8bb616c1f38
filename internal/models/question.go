package models

import "strings"

// Question types supported by the authoring flow.
const (
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeEssay          = "essay"
	QuestionTypeSection        = "section"
)

// ChoiceKeys lists the answer key letters in display order.
var ChoiceKeys = []string{"A", "B", "C", "D"}

// Question is a single item within an assignment.
type Question struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	AssignmentID  uint    `gorm:"not null;index" json:"assignment_id"`
	Position      int     `gorm:"not null;default:0" json:"position"`
	Type          string  `gorm:"size:32;not null" json:"type"`
	Content       string  `gorm:"type:text" json:"content"`
	ImageURL      string  `gorm:"size:512" json:"image_url"`
	OptionA       string  `gorm:"type:text" json:"option_a"`
	OptionB       string  `gorm:"type:text" json:"option_b"`
	OptionC       string  `gorm:"type:text" json:"option_c"`
	OptionD       string  `gorm:"type:text" json:"option_d"`
	CorrectAnswer string  `gorm:"size:1" json:"correct_answer"`
	Points        float64 `gorm:"not null;default:0" json:"points"`
}

// IsGradable reports whether the question contributes to the assignment score.
func (q Question) IsGradable() bool {
	return q.Type == QuestionTypeMultipleChoice || q.Type == QuestionTypeEssay
}

// Options returns the four choice strings keyed by letter.
func (q Question) Options() map[string]string {
	return map[string]string{
		"A": q.OptionA,
		"B": q.OptionB,
		"C": q.OptionC,
		"D": q.OptionD,
	}
}

// Option returns the choice text for the given key letter.
func (q Question) Option(key string) string {
	return q.Options()[strings.ToUpper(strings.TrimSpace(key))]
}
