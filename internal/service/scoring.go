package service

import (
	"math"
	"strconv"

	"github.com/noah-isme/gema-quiz-api/internal/models"
)

// RebalancePoints splits total evenly across the gradable questions in whole cents. Every share
// is the truncated two-decimal quotient and the leftover cents go one each to the trailing
// questions, so the last question absorbs the remainder and no two shares differ by more than
// 0.01. Section items are set to zero points.
func RebalancePoints(questions []models.Question, total float64) []models.Question {
	gradable := make([]int, 0, len(questions))
	for i := range questions {
		if questions[i].IsGradable() {
			gradable = append(gradable, i)
			continue
		}
		questions[i].Points = 0
	}

	if len(gradable) == 0 {
		return questions
	}

	cents := int64(math.Round(total * 100))
	count := int64(len(gradable))
	base := cents / count
	extra := cents % count
	for n, idx := range gradable {
		share := base
		if int64(n) >= count-extra {
			share++
		}
		questions[idx].Points = float64(share) / 100
	}

	return questions
}

// GradeAnswers builds one answer row per gradable question. A multiple-choice answer equal to
// the key earns the question's points; essays carry a nil correctness flag and zero points.
func GradeAnswers(questions []models.Question, answers map[string]string) ([]models.Answer, float64, float64) {
	rows := make([]models.Answer, 0, len(questions))
	awarded := 0.0
	possible := 0.0

	for _, question := range questions {
		if !question.IsGradable() {
			continue
		}
		possible += question.Points

		value := answers[strconv.FormatUint(uint64(question.ID), 10)]
		row := models.Answer{
			QuestionID: question.ID,
			Answer:     value,
		}

		if question.Type == models.QuestionTypeMultipleChoice {
			correct := question.CorrectAnswer != "" && value == question.CorrectAnswer
			row.IsCorrect = &correct
			if correct {
				row.PointsAwarded = question.Points
				awarded += question.Points
			}
		}

		rows = append(rows, row)
	}

	return rows, awarded, possible
}

// NormalizeScore maps awarded points onto the 0-10 scale.
func NormalizeScore(awarded, possible float64) float64 {
	if possible <= 0 {
		possible = 1
	}
	return roundScore(awarded / possible * 10)
}

func roundScore(value float64) float64 {
	return math.Round(value*100) / 100
}
