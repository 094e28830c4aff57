package models

import "gorm.io/datatypes"

// Transaction directions.
const (
	TransactionCredit = "CREDIT"
	TransactionDebit  = "DEBIT"
)

// Transaction sources.
const (
	SourceBonus    = "BONUS"
	SourcePurchase = "PURCHASE"
	SourceSpend    = "SPEND"
)

// BonusTypeWelcome tags the one-time signup bonus.
const BonusTypeWelcome = "WELCOME_BONUS"

// Wallet holds a user's coin balance.
type Wallet struct {
	BaseModel

	UserID  string `gorm:"size:36;uniqueIndex;not null" json:"user_id"`
	Balance int64  `gorm:"not null;default:0" json:"balance"`
}

// WalletTransaction is the auditable record of a balance change.
//
// BonusType duplicates metadata.type for bonus rows so the (user_id, bonus_type)
// unique index can enforce one grant per user. It stays NULL for other sources,
// and NULLs never collide in the index.
type WalletTransaction struct {
	BaseModel

	WalletID  string         `gorm:"size:36;index;not null" json:"wallet_id"`
	UserID    string         `gorm:"size:36;not null;uniqueIndex:idx_wallet_tx_user_bonus,priority:1" json:"user_id"`
	BonusType *string        `gorm:"size:64;uniqueIndex:idx_wallet_tx_user_bonus,priority:2" json:"bonus_type,omitempty"`
	Amount    int64          `gorm:"not null" json:"amount"`
	Type      string         `gorm:"size:16;not null" json:"type"`
	Source    string         `gorm:"size:32;not null;index" json:"source"`
	Metadata  datatypes.JSON `json:"metadata"`
}
