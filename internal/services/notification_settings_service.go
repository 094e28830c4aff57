package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/careerhub/internal/models"
	apperrors "github.com/charlesng35/careerhub/pkg/errors"
	"github.com/charlesng35/careerhub/pkg/validator"
)

// NotificationSettingsDTO is the API view of a user's notification preferences.
type NotificationSettingsDTO struct {
	Language     string   `json:"language"`
	EmailEnabled bool     `json:"email_enabled"`
	InAppEnabled bool     `json:"in_app_enabled"`
	MutedTypes   []string `json:"muted_types"`
}

// UpdateNotificationSettingsInput carries a partial settings update; nil fields are left unchanged.
type UpdateNotificationSettingsInput struct {
	Language     *string   `json:"language" validate:"omitempty,lang"`
	EmailEnabled *bool     `json:"email_enabled"`
	InAppEnabled *bool     `json:"in_app_enabled"`
	MutedTypes   *[]string `json:"muted_types" validate:"omitempty,max=32,dive,notification_type"`
}

// Normalize lowercases the language and trims, dedupes and drops blank muted
// types, so validation sees the values that will be stored.
func (in *UpdateNotificationSettingsInput) Normalize() {
	if in.Language != nil {
		lang := strings.ToLower(strings.TrimSpace(*in.Language))
		in.Language = &lang
	}
	if in.MutedTypes != nil {
		types := cleanList(*in.MutedTypes)
		if types == nil {
			types = []string{}
		}
		in.MutedTypes = &types
	}
}

// LocaleWriter persists a user's profile locale.
type LocaleWriter interface {
	UpdateLocale(ctx context.Context, userID, locale string) error
}

// NotificationSettingsService manages per-user notification preferences. The
// language lives on the user profile; changing it drops the cached language.
type NotificationSettingsService struct {
	db        *gorm.DB
	profiles  LocaleWriter
	languages *LanguageProvider
}

// NewNotificationSettingsService constructs a NotificationSettingsService.
func NewNotificationSettingsService(db *gorm.DB, profiles LocaleWriter, languages *LanguageProvider) (*NotificationSettingsService, error) {
	if db == nil {
		return nil, errors.New("notification settings service: db is required")
	}
	if profiles == nil || languages == nil {
		return nil, errors.New("notification settings service: profile store and language provider are required")
	}
	return &NotificationSettingsService{db: db, profiles: profiles, languages: languages}, nil
}

// DefaultNotificationSettings returns the preferences of a user who never saved any.
func DefaultNotificationSettings(userID string) models.NotificationSettings {
	return models.NotificationSettings{
		UserID:       userID,
		EmailEnabled: true,
		InAppEnabled: true,
	}
}

// Get returns the stored settings or the defaults.
func (s *NotificationSettingsService) Get(ctx context.Context, userID string) (NotificationSettingsDTO, error) {
	ctx = ensureContext(ctx)

	row, err := s.load(ctx, s.db, userID)
	if err != nil {
		return NotificationSettingsDTO{}, err
	}
	return s.toDTO(ctx, row), nil
}

// MutedTypes returns the notification types the user excluded from default lists.
func (s *NotificationSettingsService) MutedTypes(ctx context.Context, userID string) ([]string, error) {
	row, err := s.load(ensureContext(ctx), s.db, userID)
	if err != nil {
		return nil, err
	}
	return decodeTypes(row.MutedTypes), nil
}

// Update applies a partial update and returns the resulting settings.
func (s *NotificationSettingsService) Update(ctx context.Context, userID string, input UpdateNotificationSettingsInput) (NotificationSettingsDTO, error) {
	ctx = ensureContext(ctx)

	input.Normalize()
	if err := validator.ValidateStruct(input); err != nil {
		return NotificationSettingsDTO{}, apperrors.NewBadRequest(err.Error())
	}

	if input.Language != nil {
		if err := s.profiles.UpdateLocale(ctx, userID, *input.Language); err != nil {
			return NotificationSettingsDTO{}, err
		}
		s.languages.Invalidate(ctx, userID)
	}

	var row models.NotificationSettings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.load(ctx, tx, userID)
		if err != nil {
			return err
		}
		if input.EmailEnabled != nil {
			current.EmailEnabled = *input.EmailEnabled
		}
		if input.InAppEnabled != nil {
			current.InAppEnabled = *input.InAppEnabled
		}
		if input.MutedTypes != nil {
			encoded, err := json.Marshal(*input.MutedTypes)
			if err != nil {
				return err
			}
			current.MutedTypes = datatypes.JSON(encoded)
		}

		row = current
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email_enabled", "in_app_enabled", "muted_types", "updated_at"}),
		}).Create(&row).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return NotificationSettingsDTO{}, err
		}
		return NotificationSettingsDTO{}, apperrors.Storage(fmt.Errorf("notification settings service: update: %w", err))
	}

	return s.toDTO(ctx, row), nil
}

func (s *NotificationSettingsService) load(ctx context.Context, db *gorm.DB, userID string) (models.NotificationSettings, error) {
	var row models.NotificationSettings
	err := db.WithContext(ctx).Take(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultNotificationSettings(userID), nil
	}
	if err != nil {
		return models.NotificationSettings{}, apperrors.Storage(fmt.Errorf("notification settings service: load: %w", err))
	}
	return row, nil
}

func (s *NotificationSettingsService) toDTO(ctx context.Context, row models.NotificationSettings) NotificationSettingsDTO {
	return NotificationSettingsDTO{
		Language:     s.languages.CurrentLanguage(ctx, row.UserID),
		EmailEnabled: row.EmailEnabled,
		InAppEnabled: row.InAppEnabled,
		MutedTypes:   decodeTypes(row.MutedTypes),
	}
}

func decodeTypes(raw datatypes.JSON) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return []string{}
	}
	return out
}
