package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-quiz-api/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	AssignmentID *uint
	StudentName  *string
	Status       *string
}

// GradedSubmission bundles every row written when a submission is graded.
type GradedSubmission struct {
	Submission      *models.Submission
	Answers         []models.Answer
	SessionID       *uint
	// OpenSessionOnly rolls the whole write back with ErrSessionLocked when the session was
	// submitted in the meantime.
	OpenSessionOnly bool
}

// SubmissionRepository defines data operations for submissions and their answers.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	ListAttempts(ctx context.Context, filter SubmissionFilter) ([]models.SubmissionAttempt, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByOwner(ctx context.Context, assignmentID uint, studentName string) (models.Submission, error)
	SaveGraded(ctx context.Context, graded GradedSubmission) error
	GetAnswer(ctx context.Context, id uint) (models.Answer, error)
	UpdateAnswerScore(ctx context.Context, answer models.Answer, score float64) error
	Delete(ctx context.Context, id uint) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Assignment").
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		})
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := applySubmissionFilter(r.baseQuery(ctx), filter)

	var submissions []models.Submission
	if err := query.Order("submitted_at DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) ListAttempts(ctx context.Context, filter SubmissionFilter) ([]models.SubmissionAttempt, error) {
	query := r.db.WithContext(ctx).Model(&models.SubmissionAttempt{})
	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}
	if filter.StudentName != nil {
		query = query.Where("student_name = ?", *filter.StudentName)
	}

	var attempts []models.SubmissionAttempt
	if err := query.Order("submitted_at DESC").Order("id DESC").Find(&attempts).Error; err != nil {
		return nil, err
	}

	return attempts, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByOwner(ctx context.Context, assignmentID uint, studentName string) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("student_name = ?", studentName).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

// SaveGraded upserts the submission, replaces its answers, appends an attempt summary and links
// the session, all inside one transaction.
func (r *submissionRepository) SaveGraded(ctx context.Context, graded GradedSubmission) error {
	if graded.Submission == nil {
		return errors.New("submission is required")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		submission := graded.Submission

		var existing models.Submission
		err := tx.Where("assignment_id = ?", submission.AssignmentID).
			Where("student_name = ?", submission.StudentName).
			First(&existing).Error
		switch {
		case err == nil:
			submission.ID = existing.ID
			submission.CreatedAt = existing.CreatedAt
			if err := tx.Where("submission_id = ?", existing.ID).Delete(&models.Answer{}).Error; err != nil {
				return err
			}
			if err := tx.Omit("Assignment", "Answers").Save(submission).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Omit("Assignment", "Answers").Create(submission).Error; err != nil {
				return err
			}
		default:
			return err
		}

		if len(graded.Answers) > 0 {
			for i := range graded.Answers {
				graded.Answers[i].ID = 0
				graded.Answers[i].SubmissionID = submission.ID
			}
			if err := tx.Omit("Question").Create(&graded.Answers).Error; err != nil {
				return err
			}
		}

		attempt := models.SubmissionAttempt{
			AssignmentID:    submission.AssignmentID,
			StudentName:     submission.StudentName,
			SubmissionID:    submission.ID,
			Score:           submission.Score,
			DurationSeconds: submission.DurationSeconds,
			AutoSubmitted:   submission.AutoSubmitted,
			SubmittedAt:     submission.SubmittedAt,
		}
		if err := tx.Create(&attempt).Error; err != nil {
			return err
		}

		if graded.SessionID != nil {
			link := tx.Model(&models.StudentSession{}).Where("id = ?", *graded.SessionID)
			if graded.OpenSessionOnly {
				link = link.Where("status <> ?", models.SessionStatusSubmitted)
			}
			result := link.
				Updates(map[string]interface{}{
					"status":           models.SessionStatusSubmitted,
					"submission_id":    submission.ID,
					"last_activity_at": submission.SubmittedAt,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				var count int64
				if err := tx.Model(&models.StudentSession{}).Where("id = ?", *graded.SessionID).Count(&count).Error; err != nil {
					return err
				}
				if count > 0 {
					return ErrSessionLocked
				}
				return gorm.ErrRecordNotFound
			}
		}

		return nil
	})
}

func (r *submissionRepository) GetAnswer(ctx context.Context, id uint) (models.Answer, error) {
	var answer models.Answer
	if err := r.db.WithContext(ctx).Preload("Question").First(&answer, id).Error; err != nil {
		return models.Answer{}, err
	}

	return answer, nil
}

func (r *submissionRepository) UpdateAnswerScore(ctx context.Context, answer models.Answer, score float64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Answer{}).
			Where("id = ?", answer.ID).
			Updates(map[string]interface{}{
				"is_correct":     answer.IsCorrect,
				"points_awarded": answer.PointsAwarded,
			}).Error; err != nil {
			return err
		}

		return tx.Model(&models.Submission{}).
			Where("id = ?", answer.SubmissionID).
			Updates(map[string]interface{}{
				"score":      score,
				"status":     models.SubmissionStatusScored,
				"updated_at": time.Now(),
			}).Error
	})
}

func (r *submissionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("submission_id = ?", id).Delete(&models.Answer{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.StudentSession{}).
			Where("submission_id = ?", id).
			Update("submission_id", nil).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Submission{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func applySubmissionFilter(query *gorm.DB, filter SubmissionFilter) *gorm.DB {
	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}
	if filter.StudentName != nil {
		query = query.Where("student_name = ?", *filter.StudentName)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}
