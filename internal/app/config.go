package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the CareerHub backend.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Onboarding    OnboardingConfig    `mapstructure:"onboarding"`
	Welcome       WelcomeConfig       `mapstructure:"welcome"`
	Language      LanguageConfig      `mapstructure:"language"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	LogLevel  string          `mapstructure:"log_level"`
	LogFormat string          `mapstructure:"log_format"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// AllowedOrigins lists extra browser origin hosts accepted on the realtime stream.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig bounds requests per client and path within a fixed window.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// AuthConfig captures authentication settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
	Leeway time.Duration `mapstructure:"leeway"`
}

// OnboardingConfig tunes the onboarding notification sequence.
type OnboardingConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BonusAmount   int64         `mapstructure:"bonus_amount"`
	BonusDelay    time.Duration `mapstructure:"bonus_delay"`
	FeaturesDelay time.Duration `mapstructure:"features_delay"`
	TipsDelay     time.Duration `mapstructure:"tips_delay"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	SweepWindow   time.Duration `mapstructure:"sweep_window"`
	JitterMin     time.Duration `mapstructure:"jitter_min"`
	JitterMax     time.Duration `mapstructure:"jitter_max"`
	StageLease    time.Duration `mapstructure:"stage_lease"`
	PurgeSchedule string        `mapstructure:"cache_purge_schedule"`
}

// WelcomeConfig controls the welcome status cache and request spacing.
type WelcomeConfig struct {
	StatusTTL   time.Duration `mapstructure:"status_ttl"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// LanguageConfig controls notification language caching.
type LanguageConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// NotificationsConfig controls list paging and client polling hints.
type NotificationsConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	DefaultPageSize int           `mapstructure:"default_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("CAREERHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.requests", 120)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/careerhub.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")

	v.SetDefault("auth.jwt.issuer", "careerhub")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")

	v.SetDefault("onboarding.enabled", true)
	v.SetDefault("onboarding.bonus_amount", 100)
	v.SetDefault("onboarding.bonus_delay", "500ms")
	v.SetDefault("onboarding.features_delay", "30s")
	v.SetDefault("onboarding.tips_delay", "120s")
	v.SetDefault("onboarding.sweep_schedule", "@every 5m")
	v.SetDefault("onboarding.sweep_window", "15m")
	v.SetDefault("onboarding.jitter_min", "1s")
	v.SetDefault("onboarding.jitter_max", "7s")
	v.SetDefault("onboarding.stage_lease", "2m")
	v.SetDefault("onboarding.cache_purge_schedule", "@hourly")

	v.SetDefault("welcome.status_ttl", "5m")
	v.SetDefault("welcome.min_interval", "30s")

	v.SetDefault("language.cache_ttl", "5m")

	v.SetDefault("notifications.poll_interval", "30s")
	v.SetDefault("notifications.default_page_size", 20)
	v.SetDefault("notifications.max_page_size", 100)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
