package app

import (
	"strings"
	"time"

	"github.com/charlesng35/careerhub/internal/auth"
	"github.com/charlesng35/careerhub/internal/cache"
	"github.com/charlesng35/careerhub/internal/database"
	"github.com/charlesng35/careerhub/internal/onboarding"
	"github.com/charlesng35/careerhub/internal/services"
)

const (
	defaultBonusAmount = 100
	defaultStatusTTL   = 5 * time.Minute
	defaultMinInterval = 30 * time.Second
)

// OpenConfig converts the database section into database.Config. An unknown
// driver is passed through so Open reports it.
func (c DatabaseConfig) OpenConfig() database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   strings.TrimSpace(c.Path),
		DSN:    strings.TrimSpace(c.DSN),
	}

	var hosted *DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		hosted = &c.Postgres
	case "mysql":
		hosted = &c.MySQL
	}

	if hosted != nil {
		dbCfg.Host = strings.TrimSpace(hosted.Host)
		dbCfg.Port = hosted.Port
		dbCfg.Name = strings.TrimSpace(hosted.Database)
		dbCfg.User = strings.TrimSpace(hosted.Username)
		dbCfg.Password = strings.TrimSpace(hosted.Password)
	}
	return dbCfg
}

// RedisClientConfig converts the redis section into cache.RedisConfig.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// JWTServiceConfig converts the jwt section into auth.JWTConfig. An empty
// issuer disables the issuer check.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	cfg := auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         strings.TrimSpace(c.JWT.Issuer),
		AccessTokenTTL: c.JWT.TTL,
		Leeway:         c.JWT.Leeway,
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = auth.DefaultAccessTokenTTL
	}
	return cfg
}

// SequencerConfig converts OnboardingConfig into sequencer timings. Zero values
// fall back to the sequencer defaults.
func (c OnboardingConfig) SequencerConfig() onboarding.Config {
	return onboarding.Config{
		BonusDelay:    c.BonusDelay,
		FeaturesDelay: c.FeaturesDelay,
		TipsDelay:     c.TipsDelay,
		SweepWindow:   c.SweepWindow,
		JitterMin:     c.JitterMin,
		JitterMax:     c.JitterMax,
		StageLease:    c.StageLease,
	}
}

// Amount returns the configured welcome bonus, defaulting to 100 coins.
func (c OnboardingConfig) Amount() int64 {
	if c.BonusAmount <= 0 {
		return defaultBonusAmount
	}
	return c.BonusAmount
}

// StatusConfig converts WelcomeConfig into WelcomeStatusService parameters.
func (c WelcomeConfig) StatusConfig() services.WelcomeStatusConfig {
	ttl := c.StatusTTL
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	interval := c.MinInterval
	if interval <= 0 {
		interval = defaultMinInterval
	}
	return services.WelcomeStatusConfig{
		StatusTTL:   ttl,
		MinInterval: interval,
	}
}
