package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-quiz-api/internal/models"
)

// UploadRepository tracks question images held in object storage.
type UploadRepository interface {
	Create(ctx context.Context, record *models.UploadRecord) error
	GetByURL(ctx context.Context, url string) (models.UploadRecord, error)
	// FindByChecksum returns false when no image with the SHA-256 checksum was stored.
	FindByChecksum(ctx context.Context, checksum string) (models.UploadRecord, bool, error)
	Delete(ctx context.Context, id uint) error
}

type uploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository constructs a repository for upload records.
func NewUploadRepository(db *gorm.DB) UploadRepository {
	return &uploadRepository{db: db}
}

func (r *uploadRepository) Create(ctx context.Context, record *models.UploadRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *uploadRepository) GetByURL(ctx context.Context, url string) (models.UploadRecord, error) {
	var record models.UploadRecord
	err := r.db.WithContext(ctx).Where(&models.UploadRecord{URL: url}).First(&record).Error
	return record, err
}

func (r *uploadRepository) FindByChecksum(ctx context.Context, checksum string) (models.UploadRecord, bool, error) {
	var record models.UploadRecord
	err := r.db.WithContext(ctx).Where("checksum = ?", checksum).Order("id").First(&record).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.UploadRecord{}, false, nil
	case err != nil:
		return models.UploadRecord{}, false, err
	}
	return record, true, nil
}

func (r *uploadRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.UploadRecord{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
