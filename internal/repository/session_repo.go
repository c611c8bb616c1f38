package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-quiz-api/internal/models"
)

// ErrSessionLocked is returned when a write targets a session that is already submitted.
var ErrSessionLocked = errors.New("session is submitted")

// SessionRepository defines persistence operations for student sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.StudentSession) error
	GetByID(ctx context.Context, id uint) (models.StudentSession, error)
	FindIncomplete(ctx context.Context, assignmentID uint, studentName string) (models.StudentSession, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.StudentSession, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.StudentSession, error)
	UpdateStatus(ctx context.Context, id uint, status string, at time.Time) error
	MarkExited(ctx context.Context, id uint, at time.Time) error
	TouchActivity(ctx context.Context, id uint, at time.Time) error
	SaveDraft(ctx context.Context, id uint, drafts map[string]string, at time.Time) error
	Delete(ctx context.Context, id uint) error
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository instantiates a GORM-backed repository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.StudentSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) GetByID(ctx context.Context, id uint) (models.StudentSession, error) {
	var session models.StudentSession
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		return models.StudentSession{}, err
	}

	return session, nil
}

func (r *sessionRepository) FindIncomplete(ctx context.Context, assignmentID uint, studentName string) (models.StudentSession, error) {
	var session models.StudentSession
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("student_name = ?", studentName).
		Where("status <> ?", models.SessionStatusSubmitted).
		Order("started_at DESC").
		Order("id DESC").
		First(&session).Error; err != nil {
		return models.StudentSession{}, err
	}

	return session, nil
}

func (r *sessionRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.StudentSession, error) {
	var sessions []models.StudentSession
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("last_activity_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *sessionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.StudentSession, error) {
	query := r.db.WithContext(ctx).
		Where("deadline_at IS NOT NULL").
		Where("deadline_at <= ?", now).
		Where("status <> ?", models.SessionStatusSubmitted).
		Where("submission_id IS NULL").
		Where("EXISTS (SELECT 1 FROM questions WHERE questions.assignment_id = student_sessions.assignment_id)").
		Order("deadline_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var sessions []models.StudentSession
	if err := query.Find(&sessions).Error; err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *sessionRepository) UpdateStatus(ctx context.Context, id uint, status string, at time.Time) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"status":           status,
		"last_activity_at": at,
	})
}

func (r *sessionRepository) MarkExited(ctx context.Context, id uint, at time.Time) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"status":           models.SessionStatusExited,
		"last_activity_at": at,
		"exit_count":       gorm.Expr("exit_count + 1"),
	})
}

func (r *sessionRepository) TouchActivity(ctx context.Context, id uint, at time.Time) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"last_activity_at": at,
	})
}

func (r *sessionRepository) SaveDraft(ctx context.Context, id uint, drafts map[string]string, at time.Time) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"draft_answers":    models.DraftMap(drafts),
		"last_activity_at": at,
	})
}

// Delete removes the session; a linked submission and its answers are deleted first.
func (r *sessionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.StudentSession
		if err := tx.First(&session, id).Error; err != nil {
			return err
		}

		if session.SubmissionID != nil {
			if err := tx.Where("submission_id = ?", *session.SubmissionID).Delete(&models.Answer{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.Submission{}, *session.SubmissionID).Error; err != nil {
				return err
			}
		}

		return tx.Delete(&models.StudentSession{}, id).Error
	})
}

// updateColumns only touches sessions that are not submitted yet. A miss is reported as
// ErrSessionLocked when the row exists and gorm.ErrRecordNotFound otherwise.
func (r *sessionRepository) updateColumns(ctx context.Context, id uint, values map[string]interface{}) error {
	db := r.db.WithContext(ctx)
	result := db.Model(&models.StudentSession{}).
		Where("id = ?", id).
		Where("status <> ?", models.SessionStatusSubmitted).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := db.Model(&models.StudentSession{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrSessionLocked
	}
	return gorm.ErrRecordNotFound
}
