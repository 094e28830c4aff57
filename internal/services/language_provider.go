package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/charlesng35/careerhub/internal/cache"
	"github.com/charlesng35/careerhub/pkg/logger"
)

const (
	defaultLanguageTTL = 5 * time.Minute
	languageKeyPrefix  = "lang:"
)

// LocaleReader reads the raw locale from a user profile.
type LocaleReader interface {
	Locale(ctx context.Context, userID string) (string, error)
}

// LanguageProvider resolves a user's notification language with a short-lived
// cache in front of the profile store.
type LanguageProvider struct {
	profiles LocaleReader
	store    cache.Store
	ttl      time.Duration
	group    singleflight.Group
	log      *zap.Logger
}

// NewLanguageProvider constructs a LanguageProvider. A nil store keeps the
// cache in process memory.
func NewLanguageProvider(profiles LocaleReader, store cache.Store, ttl time.Duration) *LanguageProvider {
	if store == nil {
		store = cache.NewMemoryStore(nil)
	}
	if ttl <= 0 {
		ttl = defaultLanguageTTL
	}
	return &LanguageProvider{
		profiles: profiles,
		store:    store,
		ttl:      ttl,
		log:      logger.WithModule("language"),
	}
}

// NormaliseLanguage reduces a locale to a supported two-letter code.
func NormaliseLanguage(locale string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(locale)), "fr") {
		return "fr"
	}
	return "en"
}

// CurrentLanguage always returns a supported code; lookup failures yield "en".
func (p *LanguageProvider) CurrentLanguage(ctx context.Context, userID string) string {
	ctx = ensureContext(ctx)
	key := languageKeyPrefix + userID

	if cached, ok, err := p.store.Get(ctx, key); err == nil && ok && len(cached) > 0 {
		return NormaliseLanguage(string(cached))
	} else if err != nil {
		p.log.Debug("language cache read failed", logger.UserID(userID), zap.Error(err))
	}

	value, err, _ := p.group.Do(key, func() (any, error) {
		locale, err := p.profiles.Locale(ctx, userID)
		if err != nil {
			return "", err
		}
		lang := NormaliseLanguage(locale)
		if err := p.store.Set(ctx, key, []byte(lang), p.ttl); err != nil {
			p.log.Debug("language cache write failed", logger.UserID(userID), zap.Error(err))
		}
		return lang, nil
	})
	if err != nil {
		p.log.Warn("language lookup failed; using default", logger.UserID(userID), zap.Error(err))
		return "en"
	}
	return value.(string)
}

// Invalidate drops the cached language so the next call reads the profile.
func (p *LanguageProvider) Invalidate(ctx context.Context, userID string) {
	if err := p.store.Delete(ensureContext(ctx), languageKeyPrefix+userID); err != nil {
		p.log.Warn("language cache invalidation failed", logger.UserID(userID), zap.Error(err))
	}
}
