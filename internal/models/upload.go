package models

import "time"

// UploadRecord keeps metadata about an uploaded question image.
type UploadRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FileName  string    `gorm:"size:255;not null" json:"file_name"`
	URL       string    `gorm:"size:512;not null;index" json:"url"`
	PublicID  string    `gorm:"size:255;index" json:"public_id"`
	MimeType  string    `gorm:"size:64;not null" json:"mime_type"`
	SizeBytes int64     `gorm:"not null" json:"size_bytes"`
	Checksum  string    `gorm:"size:64;not null;index" json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// All lists every model managed by AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Assignment{},
		&Question{},
		&StudentSession{},
		&Submission{},
		&Answer{},
		&SubmissionAttempt{},
		&ActivityLog{},
		&UploadRecord{},
	}
}
