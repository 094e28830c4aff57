package models

import "time"

// OnboardingProgress is the durable per-user record of the onboarding sequence.
// A nil *SentAt means the stage has not been delivered. Writes that flip a stage
// are conditional on the column still being NULL.
type OnboardingProgress struct {
	UserID   string `gorm:"primaryKey;size:36" json:"user_id"`
	UserName string `gorm:"size:128" json:"user_name"`
	Language string `gorm:"size:8" json:"language"`

	BonusClaimedAt *time.Time `json:"bonus_claimed_at"`
	BonusAmount    int64      `json:"bonus_amount"`
	WelcomeSentAt  *time.Time `json:"welcome_sent_at"`
	BonusSentAt    *time.Time `json:"bonus_sent_at"`
	FeaturesSentAt *time.Time `json:"features_sent_at"`
	TipsSentAt     *time.Time `json:"tips_sent_at"`

	NextStage      string     `gorm:"size:16" json:"next_stage"`
	NextStageDueAt *time.Time `gorm:"index" json:"next_stage_due_at"`
	LeaseUntil     *time.Time `json:"-"`
	OptedOut       bool       `gorm:"default:false;index" json:"opted_out"`
	LastCheckAt    time.Time  `json:"last_check_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name so raw conditional updates stay stable.
func (OnboardingProgress) TableName() string { return "onboarding_progress" }
