package dto

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-quiz-api/internal/models"
)

// AdminLoginRequest carries the administrator password.
type AdminLoginRequest struct {
	Password string `json:"password" validate:"required,min=1,max=256"`
}

// AdminLoginResponse returns the issued token for non-browser clients.
type AdminLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AdminActivityListRequest defines filters for retrieving activity logs.
type AdminActivityListRequest struct {
	Page       int
	PageSize   int
	ActorRole  string
	Action     string
	EntityType string
	EntityID   *uint
	Since      *time.Time
}

// AdminActivityResponse serializes activity log entries.
type AdminActivityResponse struct {
	ID           uint                   `json:"id"`
	ActorRole    string                 `json:"actorRole"`
	ActorSubject string                 `json:"actorSubject,omitempty"`
	Action       string                 `json:"action"`
	EntityType   string                 `json:"entityType"`
	EntityID     *uint                  `json:"entityId"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// AdminActivityListResponse wraps paginated activity logs.
type AdminActivityListResponse struct {
	Items      []AdminActivityResponse `json:"items"`
	Pagination PaginationMeta          `json:"pagination"`
}

// CleanupRequest configures a manual cleanup pass.
type CleanupRequest struct {
	OlderThanDays int `json:"olderThanDays" validate:"required,gte=1,lte=3650"`
}

// CleanupResponse reports how many rows a cleanup pass removed.
type CleanupResponse struct {
	Cutoff        time.Time `json:"cutoff"`
	Submissions   int64     `json:"submissions"`
	Answers       int64     `json:"answers"`
	Sessions      int64     `json:"sessions"`
	Attempts      int64     `json:"attempts"`
	StaleSessions int64     `json:"staleSessions"`
}

// TableStatResponse reports size information for a table.
type TableStatResponse struct {
	Table     string `json:"table"`
	Rows      int64  `json:"rows"`
	SizeBytes *int64 `json:"sizeBytes,omitempty"`
}

// StorageReportResponse is returned by the storage dashboard endpoint.
type StorageReportResponse struct {
	Tables      []TableStatResponse `json:"tables"`
	TotalRows   int64               `json:"totalRows"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// UploadResponse describes the stored asset metadata returned to the client.
type UploadResponse struct {
	URL       string `json:"url"`
	PublicID  string `json:"publicId"`
	SizeBytes int64  `json:"sizeBytes"`
	MimeType  string `json:"mimeType"`
	Checksum  string `json:"checksum"`
	FileName  string `json:"fileName"`
	Reused    bool   `json:"reused"`
}

// GenerateQuestionsRequest carries text extracted from scanned material.
type GenerateQuestionsRequest struct {
	Text   string `form:"text" json:"text" validate:"omitempty,max=50000"`
	Count  int    `form:"count" json:"count" validate:"omitempty,gte=1,lte=50"`
	Import bool   `form:"import" json:"import"`
}

// GeneratedQuestion is one AI-suggested multiple-choice question.
type GeneratedQuestion struct {
	Question      string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correctAnswer"`
}

// GenerateQuestionsResponse lists generated questions and, when imported, the stored copies.
type GenerateQuestionsResponse struct {
	Questions []GeneratedQuestion `json:"questions"`
	Imported  []QuestionResponse  `json:"imported,omitempty"`
}

// NewAdminActivityResponse converts a model into an activity DTO.
func NewAdminActivityResponse(entry models.ActivityLog) AdminActivityResponse {
	return AdminActivityResponse{
		ID:           entry.ID,
		ActorRole:    entry.ActorRole,
		ActorSubject: entry.ActorSubject,
		Action:       entry.Action,
		EntityType:   entry.EntityType,
		EntityID:     entry.EntityID,
		Metadata:     metadataFromJSON(entry.Metadata),
		CreatedAt:    entry.CreatedAt,
	}
}

func metadataFromJSON(data datatypes.JSONMap) map[string]interface{} {
	result := make(map[string]interface{}, len(data))
	for key, value := range data {
		result[key] = value
	}
	return result
}
