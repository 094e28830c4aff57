package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/charlesng35/careerhub/internal/database"
	"github.com/charlesng35/careerhub/internal/models"
	apperrors "github.com/charlesng35/careerhub/pkg/errors"
	"github.com/charlesng35/careerhub/pkg/validator"
)

const defaultLocale = "en"

// CreateUserInput describes a profile registered through seeding or operator tooling.
type CreateUserInput struct {
	Username string `json:"username" validate:"required,max=128"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Locale   string `json:"locale" validate:"omitempty,max=16"`
}

// Normalize trims every field, lowercases the email and applies the default locale.
func (in *CreateUserInput) Normalize() {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Locale = strings.TrimSpace(in.Locale)
	if in.Locale == "" {
		in.Locale = defaultLocale
	}
}

// UserService reads and maintains the account profiles the notification core
// depends on. Accounts themselves are owned by the wider product.
type UserService struct {
	db *gorm.DB

	mu       sync.RWMutex
	onDelete []DeleteHook
}

// DeleteHook runs after a profile is deleted.
type DeleteHook func(ctx context.Context, userID string) error

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

func (s *UserService) scoped(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ensureContext(ctx))
}

// Create stores a new active profile.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	input.Normalize()
	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	user := &models.User{
		Username: input.Username,
		Email:    input.Email,
		Locale:   input.Locale,
		IsActive: true,
	}
	if err := s.scoped(ctx).Create(user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperrors.NewBadRequest("email already registered")
		}
		return nil, apperrors.Storage(err)
	}
	return user, nil
}

// GetByID returns a profile that has not been deleted.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.ErrUserNotFound
	}

	var user models.User
	switch err := s.scoped(ctx).Take(&user, "id = ?", id).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperrors.ErrUserNotFound
	case err != nil:
		return nil, apperrors.Storage(err)
	}
	return &user, nil
}

// Locale returns the raw locale stored on the profile.
func (s *UserService) Locale(ctx context.Context, id string) (string, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return user.Locale, nil
}

// UpdateLocale persists a new profile locale.
func (s *UserService) UpdateLocale(ctx context.Context, id, locale string) error {
	res := s.scoped(ctx).
		Model(&models.User{}).
		Where("id = ?", strings.TrimSpace(id)).
		Update("locale", strings.TrimSpace(locale))
	return affectedOne(res)
}

// OnDelete registers a hook that runs after every successful Delete.
func (s *UserService) OnDelete(hook DeleteHook) {
	if hook == nil {
		return
	}
	s.mu.Lock()
	s.onDelete = append(s.onDelete, hook)
	s.mu.Unlock()
}

// Delete soft-deletes a profile and then runs the delete hooks. Hook failures
// are aggregated; the profile stays deleted.
func (s *UserService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := affectedOne(s.scoped(ctx).Delete(&models.User{}, "id = ?", id)); err != nil {
		return err
	}

	s.mu.RLock()
	hooks := append([]DeleteHook(nil), s.onDelete...)
	s.mu.RUnlock()

	var errs error
	for _, hook := range hooks {
		errs = multierr.Append(errs, hook(ensureContext(ctx), id))
	}
	return errs
}

func affectedOne(res *gorm.DB) error {
	if res.Error != nil {
		return apperrors.Storage(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}
