package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/careerhub/internal/models"
	appErrors "github.com/charlesng35/careerhub/pkg/errors"
)

// progressStore persists OnboardingProgress rows. Every stage flip is a
// conditional update so concurrent writers cannot mark a stage twice.
type progressStore struct {
	db *gorm.DB
}

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return appErrors.Storage(fmt.Errorf("onboarding: %s: %w", op, err))
}

// get returns the user's row, or nil when none exists.
func (s *progressStore) get(ctx context.Context, userID string) (*models.OnboardingProgress, error) {
	var row models.OnboardingProgress
	err := s.db.WithContext(ctx).Take(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("load progress", err)
	}
	return &row, nil
}

// ensure creates the row on first sight and returns the stored copy.
func (s *progressStore) ensure(ctx context.Context, user *models.User, now time.Time) (*models.OnboardingProgress, error) {
	row := models.OnboardingProgress{
		UserID:      user.ID,
		UserName:    user.Username,
		LastCheckAt: now,
	}
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return nil, storageError("create progress", err)
	}

	if err := db.Model(&models.OnboardingProgress{}).
		Where("user_id = ?", user.ID).
		Updates(map[string]any{"last_check_at": now, "user_name": user.Username}).Error; err != nil {
		return nil, storageError("touch progress", err)
	}
	return s.get(ctx, user.ID)
}

// markClaimed records the bonus claim once and points the row at the bonus stage.
func (s *progressStore) markClaimed(ctx context.Context, userID string, amount int64, at, due time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.OnboardingProgress{}).
		Where("user_id = ? AND bonus_claimed_at IS NULL", userID).
		Updates(map[string]any{
			"bonus_claimed_at":  at,
			"bonus_amount":      amount,
			"next_stage":        string(StageBonus),
			"next_stage_due_at": due,
		})
	if res.Error != nil {
		return false, storageError("mark claimed", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// acquireLease claims the right to send stage until the lease expires. It
// fails when the stage is already sent, the user opted out, or another
// instance holds a live lease.
func (s *progressStore) acquireLease(ctx context.Context, userID string, stage Stage, now, until time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.OnboardingProgress{}).
		Where("user_id = ? AND opted_out = ?", userID, false).
		Where(stage.column() + " IS NULL").
		Where("lease_until IS NULL OR lease_until < ?", now).
		Update("lease_until", until)
	if res.Error != nil {
		return false, storageError("acquire lease", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *progressStore) releaseLease(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Model(&models.OnboardingProgress{}).
		Where("user_id = ?", userID).
		Update("lease_until", nil).Error
	return storageError("release lease", err)
}

// markSent flips stage to sent once and records what is due next.
func (s *progressStore) markSent(ctx context.Context, userID string, stage Stage, at time.Time, language string, next Stage, nextDue *time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.OnboardingProgress{}).
		Where("user_id = ?", userID).
		Where(stage.column() + " IS NULL").
		Updates(map[string]any{
			stage.column():      at,
			"language":          language,
			"next_stage":        string(next),
			"next_stage_due_at": nextDue,
			"lease_until":       nil,
		})
	if res.Error != nil {
		return false, storageError("mark sent", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *progressStore) optOut(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Model(&models.OnboardingProgress{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"opted_out":         true,
			"next_stage":        "",
			"next_stage_due_at": nil,
			"lease_until":       nil,
		}).Error
	return storageError("opt out", err)
}

func (s *progressStore) delete(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.OnboardingProgress{}).Error
	return storageError("delete progress", err)
}

// pending lists claimed users with an unsent stage, earliest due first. A nil
// until returns every pending row; otherwise only those due at or before it.
func (s *progressStore) pending(ctx context.Context, until *time.Time, limit int) ([]models.OnboardingProgress, error) {
	query := s.db.WithContext(ctx).
		Where("opted_out = ? AND bonus_claimed_at IS NOT NULL", false).
		Where("next_stage <> ''")
	if until != nil {
		query = query.Where("next_stage_due_at <= ?", *until)
	}

	var rows []models.OnboardingProgress
	if err := query.Order("next_stage_due_at ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, storageError("list pending stages", err)
	}
	return rows, nil
}

// unrecordedClaim is a granted welcome bonus whose progress row never recorded the claim.
type unrecordedClaim struct {
	UserID    string
	Amount    int64
	AwardedAt time.Time
}

// unrecordedClaims finds welcome-bonus grants whose claim write was lost, so
// the post-claim stages can still be scheduled. The award time comes from the
// transaction metadata, falling back to the row's creation time.
func (s *progressStore) unrecordedClaims(ctx context.Context, limit int) ([]unrecordedClaim, error) {
	var rows []models.WalletTransaction
	err := s.db.WithContext(ctx).
		Select("wallet_transactions.*").
		Joins("JOIN onboarding_progress ON onboarding_progress.user_id = wallet_transactions.user_id").
		Where("wallet_transactions.bonus_type = ?", models.BonusTypeWelcome).
		Where("onboarding_progress.bonus_claimed_at IS NULL").
		Order("wallet_transactions.created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, storageError("list unrecorded claims", err)
	}

	claims := make([]unrecordedClaim, 0, len(rows))
	for _, row := range rows {
		claim := unrecordedClaim{UserID: row.UserID, Amount: row.Amount, AwardedAt: row.CreatedAt.UTC()}
		var meta struct {
			AwardedAt time.Time `json:"awarded_at"`
		}
		if json.Unmarshal(row.Metadata, &meta) == nil && !meta.AwardedAt.IsZero() {
			claim.AwardedAt = meta.AwardedAt.UTC()
		}
		claims = append(claims, claim)
	}
	return claims, nil
}
