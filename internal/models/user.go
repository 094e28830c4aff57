package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the slice of the account profile the notification core reads.
// Accounts are owned by the wider product; this service only consumes them.
type User struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Username string `gorm:"size:128;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;size:255" json:"email"`
	Locale   string `gorm:"size:16;default:'en'" json:"locale"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a UUID unless the caller supplied one.
func (u *User) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	return nil
}
