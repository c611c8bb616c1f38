package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-quiz-api/internal/models"
)

// TableStat reports the row count and, where the store supports it, the on-disk size of a table.
type TableStat struct {
	Table     string `json:"table"`
	Rows      int64  `json:"rows"`
	SizeBytes *int64 `json:"size_bytes,omitempty"`
}

// PurgeResult counts the rows removed by a cleanup pass.
type PurgeResult struct {
	Submissions int64 `json:"submissions"`
	Answers     int64 `json:"answers"`
	Sessions    int64 `json:"sessions"`
	Attempts    int64 `json:"attempts"`
}

// MaintenanceRepository backs the admin storage report and cleanup jobs.
type MaintenanceRepository interface {
	TableStats(ctx context.Context) ([]TableStat, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (PurgeResult, error)
	PurgeStaleSessions(ctx context.Context, inactiveSince time.Time) (int64, error)
}

type maintenanceRepository struct {
	db *gorm.DB
}

// NewMaintenanceRepository constructs the maintenance repository.
func NewMaintenanceRepository(db *gorm.DB) MaintenanceRepository {
	return &maintenanceRepository{db: db}
}

func (r *maintenanceRepository) TableStats(ctx context.Context) ([]TableStat, error) {
	tables := []struct {
		name  string
		model interface{}
	}{
		{"assignments", &models.Assignment{}},
		{"questions", &models.Question{}},
		{"student_sessions", &models.StudentSession{}},
		{"submissions", &models.Submission{}},
		{"answers", &models.Answer{}},
		{"submission_attempts", &models.SubmissionAttempt{}},
		{"upload_records", &models.UploadRecord{}},
	}

	db := r.db.WithContext(ctx)
	postgres := db.Dialector.Name() == "postgres"

	stats := make([]TableStat, 0, len(tables))
	for _, table := range tables {
		stat := TableStat{Table: table.name}
		if err := db.Model(table.model).Count(&stat.Rows).Error; err != nil {
			return nil, err
		}
		if postgres {
			var size int64
			if err := db.Raw("SELECT pg_total_relation_size(?::regclass)", table.name).Scan(&size).Error; err == nil {
				stat.SizeBytes = &size
			}
		}
		stats = append(stats, stat)
	}

	return stats, nil
}

// PurgeBefore deletes submissions submitted before cutoff together with their answers, and
// sessions started before cutoff.
func (r *maintenanceRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (PurgeResult, error) {
	var result PurgeResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		oldSubmissions := tx.Model(&models.Submission{}).Select("id").Where("submitted_at < ?", cutoff)

		answers := tx.Where("submission_id IN (?)", oldSubmissions).Delete(&models.Answer{})
		if answers.Error != nil {
			return answers.Error
		}
		result.Answers = answers.RowsAffected

		sessions := tx.Where("started_at < ?", cutoff).Delete(&models.StudentSession{})
		if sessions.Error != nil {
			return sessions.Error
		}
		result.Sessions = sessions.RowsAffected

		attempts := tx.Where("submitted_at < ?", cutoff).Delete(&models.SubmissionAttempt{})
		if attempts.Error != nil {
			return attempts.Error
		}
		result.Attempts = attempts.RowsAffected

		submissions := tx.Where("submitted_at < ?", cutoff).Delete(&models.Submission{})
		if submissions.Error != nil {
			return submissions.Error
		}
		result.Submissions = submissions.RowsAffected
		return nil
	})

	return result, err
}

// PurgeStaleSessions removes exited sessions without a submission that have been idle since
// before inactiveSince.
func (r *maintenanceRepository) PurgeStaleSessions(ctx context.Context, inactiveSince time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ?", models.SessionStatusExited).
		Where("submission_id IS NULL").
		Where("last_activity_at < ?", inactiveSince).
		Delete(&models.StudentSession{})
	return result.RowsAffected, result.Error
}
