package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog is one audited admin or scheduler action, e.g. "question.updated" or "maintenance.cleanup".
type ActivityLog struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	ActorRole    string            `gorm:"size:32;not null;index" json:"actor_role"`
	ActorSubject string            `gorm:"size:128" json:"actor_subject"`
	Action       string            `gorm:"size:64;not null;index" json:"action"`
	EntityType   string            `gorm:"size:64;not null;index:idx_activity_entity" json:"entity_type"`
	EntityID     *uint             `gorm:"index:idx_activity_entity" json:"entity_id"`
	Metadata     datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
}
