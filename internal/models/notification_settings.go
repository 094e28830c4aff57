package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationSettings stores per-user delivery preferences. Booleans carry no
// column default so an explicit false survives inserts.
type NotificationSettings struct {
	UserID       string         `gorm:"primaryKey;size:36" json:"user_id"`
	EmailEnabled bool           `gorm:"not null" json:"email_enabled"`
	InAppEnabled bool           `gorm:"not null" json:"in_app_enabled"`
	MutedTypes   datatypes.JSON `json:"muted_types"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
