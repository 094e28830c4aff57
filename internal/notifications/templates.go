package notifications

import (
	"embed"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/charlesng35/careerhub/pkg/logger"
	"github.com/charlesng35/careerhub/pkg/metrics"
)

// Template keys understood by the resolver.
const (
	TemplateWelcome      = "welcome"
	TemplateBonusAwarded = "bonus_awarded"
	TemplateFeatureIntro = "feature_intro"
	TemplateTips         = "tips"
)

const (
	// DefaultLanguage is used whenever a catalog lacks a key or language.
	DefaultLanguage = "en"

	FallbackTitle   = "Notification"
	FallbackMessage = "You have a new notification"
)

//go:embed catalog/*.yaml
var catalogFS embed.FS

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Template is a localized title/message pair with {{name}} placeholders.
type Template struct {
	Title   string `yaml:"title"`
	Message string `yaml:"message"`
}

// Rendered is the interpolated output of a template.
type Rendered struct {
	Title   string
	Message string
}

// Catalogs maps language code -> template key -> template.
type Catalogs map[string]map[string]Template

// Resolver renders localized notification copy. It never fails: unknown
// languages use English and unknown keys use a generic fallback.
type Resolver struct {
	catalogs Catalogs
	log      *zap.Logger
}

var (
	defaultOnce     sync.Once
	defaultResolver *Resolver
	defaultErr      error
)

// DefaultResolver returns a resolver backed by the embedded catalogs.
func DefaultResolver() (*Resolver, error) {
	defaultOnce.Do(func() {
		var catalogs Catalogs
		catalogs, defaultErr = LoadEmbeddedCatalogs()
		if defaultErr == nil {
			defaultResolver = NewResolver(catalogs)
		}
	})
	return defaultResolver, defaultErr
}

// LoadEmbeddedCatalogs parses every catalog/<lang>.yaml bundled with the binary.
func LoadEmbeddedCatalogs() (Catalogs, error) {
	entries, err := catalogFS.ReadDir("catalog")
	if err != nil {
		return nil, fmt.Errorf("templates: read catalog dir: %w", err)
	}

	catalogs := make(Catalogs, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yaml" {
			continue
		}
		raw, err := catalogFS.ReadFile(path.Join("catalog", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("templates: read %s: %w", entry.Name(), err)
		}
		var table map[string]Template
		if err := yaml.Unmarshal(raw, &table); err != nil {
			return nil, fmt.Errorf("templates: parse %s: %w", entry.Name(), err)
		}
		catalogs[strings.TrimSuffix(entry.Name(), ".yaml")] = table
	}
	return catalogs, nil
}

// NewResolver constructs a Resolver over the supplied catalogs.
func NewResolver(catalogs Catalogs) *Resolver {
	if catalogs == nil {
		catalogs = Catalogs{}
	}
	return &Resolver{
		catalogs: catalogs,
		log:      logger.WithModule("templates"),
	}
}

// Languages lists the languages that have a catalog.
func (r *Resolver) Languages() []string {
	langs := make([]string, 0, len(r.catalogs))
	for lang := range r.catalogs {
		langs = append(langs, lang)
	}
	return langs
}

// Resolve renders key in language, interpolating vars into title and message.
func (r *Resolver) Resolve(language, key string, vars map[string]any) Rendered {
	language = strings.ToLower(strings.TrimSpace(language))

	tmpl, ok := r.lookup(language, key)
	if !ok && language != DefaultLanguage {
		metrics.TemplateMisses.WithLabelValues(language, DefaultLanguage).Inc()
		tmpl, ok = r.lookup(DefaultLanguage, key)
	}
	if !ok {
		metrics.TemplateMisses.WithLabelValues(language, "generic").Inc()
		r.log.Warn("notification template missing",
			zap.String("language", language),
			zap.String("template", key),
		)
		return Rendered{Title: FallbackTitle, Message: FallbackMessage}
	}

	return Rendered{
		Title:   Interpolate(tmpl.Title, vars),
		Message: Interpolate(tmpl.Message, vars),
	}
}

func (r *Resolver) lookup(language, key string) (Template, bool) {
	table, ok := r.catalogs[language]
	if !ok {
		return Template{}, false
	}
	tmpl, ok := table[key]
	return tmpl, ok
}

// Interpolate replaces {{name}} placeholders with values from vars. Placeholders
// without a value are kept as written.
func Interpolate(text string, vars map[string]any) string {
	if text == "" || len(vars) == 0 {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := vars[name]
		if !ok || value == nil {
			return match
		}
		return fmt.Sprint(value)
	})
}
