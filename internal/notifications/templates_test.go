package notifications

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/careerhub/pkg/logger"
)

func TestEmbeddedCatalogsCoverEveryTemplate(t *testing.T) {
	catalogs, err := LoadEmbeddedCatalogs()
	require.NoError(t, err)
	require.Contains(t, catalogs, "en")
	require.Contains(t, catalogs, "fr")

	for lang, table := range catalogs {
		for _, key := range []string{TemplateWelcome, TemplateBonusAwarded, TemplateFeatureIntro, TemplateTips} {
			tmpl, ok := table[key]
			require.Truef(t, ok, "%s missing %s", lang, key)
			require.NotEmpty(t, tmpl.Title)
			require.NotEmpty(t, tmpl.Message)
		}
	}
}

func TestResolveInterpolatesPayload(t *testing.T) {
	resolver, err := DefaultResolver()
	require.NoError(t, err)

	out := resolver.Resolve("fr", TemplateBonusAwarded, BonusAwardedPayload{Amount: 100}.Vars())
	require.Equal(t, "Vous avez reçu 100 pièces", out.Title)
	require.Contains(t, out.Message, "100 pièces")
}

func TestResolveUnknownKeyReturnsGenericFallback(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	logger.Replace(zap.New(core))
	t.Cleanup(func() { logger.Replace(nil) })

	resolver := NewResolver(Catalogs{"en": {"welcome": {Title: "Hi", Message: "There"}}})

	for _, lang := range []string{"en", "fr", "de", ""} {
		out := resolver.Resolve(lang, "does_not_exist", map[string]any{"name": "Ada"})
		require.Equal(t, Rendered{Title: FallbackTitle, Message: FallbackMessage}, out)
	}
	require.Equal(t, 4, recorded.FilterMessage("notification template missing").Len())
}

func TestResolveUnsupportedLanguageFallsBackToEnglish(t *testing.T) {
	resolver, err := DefaultResolver()
	require.NoError(t, err)

	english := resolver.Resolve("en", TemplateWelcome, map[string]any{"name": "Ada"})
	german := resolver.Resolve("de", TemplateWelcome, map[string]any{"name": "Ada"})
	require.Equal(t, english, german)
	require.Equal(t, "Welcome to CareerHub, Ada!", german.Title)
}

func TestResolveFallsBackPerKey(t *testing.T) {
	resolver := NewResolver(Catalogs{
		"en": {"tips": {Title: "Tips", Message: "Read these"}},
		"fr": {"welcome": {Title: "Bonjour", Message: "Salut"}},
	})

	require.Equal(t, "Tips", resolver.Resolve("fr", "tips", nil).Title)
	require.Equal(t, "Bonjour", resolver.Resolve("FR", "welcome", nil).Title)
}

func TestInterpolateKeepsUnresolvedPlaceholders(t *testing.T) {
	got := Interpolate("Hello {{name}}, you have {{ count }} new {{thing}}", map[string]any{
		"name":  "Ada",
		"count": 3,
	})
	require.Equal(t, "Hello Ada, you have 3 new {{thing}}", got)

	require.Equal(t, "Hello {{name}}", Interpolate("Hello {{name}}", nil))
}
