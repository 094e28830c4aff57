package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification represents an in-app notification for a user. Rows are only
// mutated by read-state transitions or deleted; content is never edited.
type Notification struct {
	BaseModel

	UserID  string         `gorm:"size:36;index;not null" json:"user_id"`
	Type    string         `gorm:"size:64;index;not null" json:"type"`
	Title   string         `gorm:"size:255;not null" json:"title"`
	Message string         `gorm:"type:text" json:"message"`
	Data    datatypes.JSON `json:"data"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`

	ActorID      string `gorm:"size:36" json:"actor_id"`
	ActorName    string `gorm:"size:128" json:"actor_name"`
	ActorPicture string `gorm:"type:text" json:"actor_picture"`

	TargetType  string `gorm:"size:64" json:"target_type"`
	TargetID    string `gorm:"size:64" json:"target_id"`
	TargetTitle string `gorm:"size:255" json:"target_title"`
	TargetSlug  string `gorm:"size:255" json:"target_slug"`
}
