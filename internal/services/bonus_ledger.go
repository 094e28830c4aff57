package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/careerhub/internal/database"
	"github.com/charlesng35/careerhub/internal/models"
	apperrors "github.com/charlesng35/careerhub/pkg/errors"
	"github.com/charlesng35/careerhub/pkg/logger"
	"github.com/charlesng35/careerhub/pkg/metrics"
)

// DefaultWelcomeBonus is the number of coins credited on first claim.
const DefaultWelcomeBonus int64 = 100

// AwardResult reports the outcome of AwardOnce. Granted is false when the user
// already holds the bonus; that is not an error.
type AwardResult struct {
	Granted       bool
	Amount        int64
	TransactionID string
	AwardedAt     time.Time
}

// bonusMetadata is stored on the transaction for audit.
type bonusMetadata struct {
	Type      string    `json:"type"`
	AwardedAt time.Time `json:"awarded_at"`
}

// BonusLedger grants the one-time welcome bonus. The balance credit and the
// transaction insert share one database transaction, and the unique index on
// (user_id, bonus_type) decides races between concurrent claims, including
// claims from other server instances.
type BonusLedger struct {
	db     *gorm.DB
	amount int64
	now    func() time.Time
	log    *zap.Logger
}

// LedgerOption customises the BonusLedger.
type LedgerOption func(*BonusLedger)

// WithLedgerClock overrides the clock used for award timestamps.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *BonusLedger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewBonusLedger constructs a BonusLedger crediting amount coins per grant.
func NewBonusLedger(db *gorm.DB, amount int64, opts ...LedgerOption) (*BonusLedger, error) {
	if db == nil {
		return nil, errors.New("bonus ledger: db is required")
	}
	if amount <= 0 {
		amount = DefaultWelcomeBonus
	}
	ledger := &BonusLedger{
		db:     db,
		amount: amount,
		now:    time.Now,
		log:    logger.WithModule("ledger"),
	}
	for _, opt := range opts {
		opt(ledger)
	}
	return ledger, nil
}

// Amount returns the configured bonus size.
func (l *BonusLedger) Amount() int64 {
	return l.amount
}

// AwardOnce credits the welcome bonus unless the user already has it.
func (l *BonusLedger) AwardOnce(ctx context.Context, userID string) (AwardResult, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return AwardResult{}, errors.New("bonus ledger: user id is required")
	}

	awardedAt := l.now().UTC()
	bonusType := models.BonusTypeWelcome
	meta, err := json.Marshal(bonusMetadata{Type: bonusType, AwardedAt: awardedAt})
	if err != nil {
		return AwardResult{}, fmt.Errorf("bonus ledger: marshal metadata: %w", err)
	}

	var (
		already bool
		record  models.WalletTransaction
	)

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.WalletTransaction{}).
			Where("user_id = ? AND bonus_type = ?", userID, bonusType).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			already = true
			return nil
		}

		wallet, err := l.ensureWallet(tx, userID)
		if err != nil {
			return err
		}

		record = models.WalletTransaction{
			WalletID:  wallet.ID,
			UserID:    userID,
			BonusType: &bonusType,
			Amount:    l.amount,
			Type:      models.TransactionCredit,
			Source:    models.SourceBonus,
			Metadata:  datatypes.JSON(meta),
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		return tx.Model(&models.Wallet{}).
			Where("id = ?", wallet.ID).
			UpdateColumn("balance", gorm.Expr("balance + ?", l.amount)).Error
	})

	switch {
	case err != nil && database.IsUniqueViolation(err):
		already = true
	case err != nil:
		metrics.BonusGrants.WithLabelValues("error").Inc()
		l.log.Error("welcome bonus grant failed", logger.UserID(userID), zap.Error(err))
		return AwardResult{}, apperrors.Storage(fmt.Errorf("bonus ledger: award: %w", err))
	}

	if already {
		metrics.BonusGrants.WithLabelValues("already_granted").Inc()
		return AwardResult{Granted: false, Amount: 0}, nil
	}

	metrics.BonusGrants.WithLabelValues("granted").Inc()
	l.log.Info("welcome bonus granted", logger.UserID(userID), zap.Int64("amount", l.amount))
	return AwardResult{
		Granted:       true,
		Amount:        l.amount,
		TransactionID: record.ID,
		AwardedAt:     awardedAt,
	}, nil
}

// ensureWallet loads the user's wallet inside tx, creating an empty one if absent.
func (l *BonusLedger) ensureWallet(tx *gorm.DB, userID string) (*models.Wallet, error) {
	wallet := models.Wallet{UserID: userID}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&wallet).Error; err != nil {
		return nil, err
	}

	var stored models.Wallet
	if err := tx.Take(&stored, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// HasBonus reports whether a welcome bonus transaction exists for the user.
func (l *BonusLedger) HasBonus(ctx context.Context, userID string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := l.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("user_id = ? AND bonus_type = ?", userID, models.BonusTypeWelcome).
		Count(&count).Error; err != nil {
		return false, apperrors.Storage(fmt.Errorf("bonus ledger: lookup: %w", err))
	}
	return count > 0, nil
}

// Balance returns the user's wallet balance, zero when no wallet exists.
func (l *BonusLedger) Balance(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	var wallet models.Wallet
	err := l.db.WithContext(ctx).Take(&wallet, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.Storage(fmt.Errorf("bonus ledger: balance: %w", err))
	}
	return wallet.Balance, nil
}

// UsersWithoutBonus lists active users created at or after since that hold no
// welcome bonus, oldest first.
func (l *BonusLedger) UsersWithoutBonus(ctx context.Context, since time.Time, limit int) ([]models.User, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 500
	}

	granted := l.db.Model(&models.WalletTransaction{}).
		Select("user_id").
		Where("bonus_type = ?", models.BonusTypeWelcome)

	var users []models.User
	if err := l.db.WithContext(ctx).
		Where("created_at >= ? AND is_active = ?", since, true).
		Where("id NOT IN (?)", granted).
		Order("created_at ASC").
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, apperrors.Storage(fmt.Errorf("bonus ledger: list unclaimed users: %w", err))
	}
	return users, nil
}
