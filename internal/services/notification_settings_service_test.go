package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/charlesng35/careerhub/pkg/errors"
)

func newSettingsService(t *testing.T) (*NotificationSettingsService, *LanguageProvider, string) {
	t.Helper()
	db := openServiceDB(t)
	user := seedUser(t, db, "settings-user", "en-GB")

	users, err := NewUserService(db)
	require.NoError(t, err)
	languages := NewLanguageProvider(users, nil, time.Hour)

	svc, err := NewNotificationSettingsService(db, users, languages)
	require.NoError(t, err)
	return svc, languages, user.ID
}

func TestNotificationSettingsDefaults(t *testing.T) {
	svc, _, userID := newSettingsService(t)

	settings, err := svc.Get(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, NotificationSettingsDTO{
		Language:     "en",
		EmailEnabled: true,
		InAppEnabled: true,
		MutedTypes:   []string{},
	}, settings)
}

func TestNotificationSettingsPartialUpdate(t *testing.T) {
	svc, _, userID := newSettingsService(t)
	ctx := context.Background()

	off := false
	muted := []string{"tips", " tips ", "feature_intro", ""}
	updated, err := svc.Update(ctx, userID, UpdateNotificationSettingsInput{
		EmailEnabled: &off,
		MutedTypes:   &muted,
	})
	require.NoError(t, err)
	require.False(t, updated.EmailEnabled)
	require.True(t, updated.InAppEnabled)
	require.Equal(t, []string{"tips", "feature_intro"}, updated.MutedTypes)

	inApp := false
	updated, err = svc.Update(ctx, userID, UpdateNotificationSettingsInput{InAppEnabled: &inApp})
	require.NoError(t, err)
	require.False(t, updated.EmailEnabled, "untouched fields persist")
	require.False(t, updated.InAppEnabled)

	types, err := svc.MutedTypes(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, []string{"tips", "feature_intro"}, types)
}

func TestNotificationSettingsLanguageChangeInvalidatesCache(t *testing.T) {
	svc, languages, userID := newSettingsService(t)
	ctx := context.Background()

	require.Equal(t, "en", languages.CurrentLanguage(ctx, userID))

	fr := "FR"
	updated, err := svc.Update(ctx, userID, UpdateNotificationSettingsInput{Language: &fr})
	require.NoError(t, err)
	require.Equal(t, "fr", updated.Language)
	require.Equal(t, "fr", languages.CurrentLanguage(ctx, userID))
}

func TestNotificationSettingsRejectsUnsupportedLanguage(t *testing.T) {
	svc, _, userID := newSettingsService(t)

	de := "de"
	_, err := svc.Update(context.Background(), userID, UpdateNotificationSettingsInput{Language: &de})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestNotificationSettingsUnknownUserLanguage(t *testing.T) {
	svc, _, _ := newSettingsService(t)

	fr := "fr"
	_, err := svc.Update(context.Background(), "missing", UpdateNotificationSettingsInput{Language: &fr})
	require.ErrorIs(t, err, apperrors.ErrUserNotFound)
}
