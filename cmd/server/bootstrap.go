package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/careerhub/internal/api"
	"github.com/charlesng35/careerhub/internal/app"
	"github.com/charlesng35/careerhub/internal/app/maintenance"
	iauth "github.com/charlesng35/careerhub/internal/auth"
	"github.com/charlesng35/careerhub/internal/cache"
	"github.com/charlesng35/careerhub/internal/database"
	"github.com/charlesng35/careerhub/internal/handlers"
	"github.com/charlesng35/careerhub/internal/middleware"
	"github.com/charlesng35/careerhub/internal/notifications"
	"github.com/charlesng35/careerhub/internal/onboarding"
	"github.com/charlesng35/careerhub/internal/realtime"
	"github.com/charlesng35/careerhub/internal/services"
	"github.com/charlesng35/careerhub/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *cache.RedisClient
	Store     cache.Store
	Hub       *realtime.Hub
	Sequencer *onboarding.Sequencer
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Store = dbStore

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
			stack.Redis = nil
		} else {
			stack.Store = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Hub = realtime.NewHub(realtime.WithAllowedOrigins(cfg.Server.AllowedOrigins...))

	users, err := services.NewUserService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	ledger, err := services.NewBonusLedger(stack.DB, cfg.Onboarding.Amount())
	if err != nil {
		return nil, fmt.Errorf("initialise bonus ledger: %w", err)
	}

	languages := services.NewLanguageProvider(users, stack.Store, cfg.Language.CacheTTL)

	notifier, err := services.NewNotificationService(stack.DB, stack.Hub,
		services.WithPageSizes(cfg.Notifications.DefaultPageSize, cfg.Notifications.MaxPageSize))
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	settings, err := services.NewNotificationSettingsService(stack.DB, users, languages)
	if err != nil {
		return nil, fmt.Errorf("initialise notification settings service: %w", err)
	}

	welcome, err := services.NewWelcomeStatusService(ledger, users, stack.Store, cfg.Welcome.StatusConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise welcome status service: %w", err)
	}

	resolver, err := notifications.DefaultResolver()
	if err != nil {
		return nil, fmt.Errorf("load notification templates: %w", err)
	}

	stack.Sequencer, err = onboarding.NewSequencer(stack.DB, onboarding.Dependencies{
		Ledger:    ledger,
		Languages: languages,
		Templates: resolver,
		Sink:      notifier,
		Users:     users,
	}, cfg.Onboarding.SequencerConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise onboarding sequencer: %w", err)
	}
	users.OnDelete(stack.Sequencer.Forget)

	var sweeper maintenance.Sweeper
	if cfg.Onboarding.Enabled {
		sweeper = stack.Sequencer
		resumed, err := stack.Sequencer.Resume(ctx)
		if err != nil {
			log.Warn("onboarding resume incomplete", zap.Error(err))
		}
		log.Info("onboarding resumed", zap.Int("users", resumed))
	}

	stack.Cleaner = maintenance.NewCleaner(stack.DB, sweeper, dbStore,
		maintenance.WithSweepSchedule(cfg.Onboarding.SweepSchedule),
		maintenance.WithPurgeSchedule(cfg.Onboarding.PurgeSchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.RateStore = middleware.NewRateStore(stack.Store)

	checks := map[string]handlers.HealthCheck{}
	if stack.Redis != nil {
		checks["redis"] = stack.Redis.Ping
	}

	stack.Router, err = api.NewRouter(cfg, api.Dependencies{
		DB:            stack.DB,
		JWT:           jwtSvc,
		Notifications: notifier,
		Settings:      settings,
		WelcomeStatus: welcome,
		Claimer:       stack.Sequencer,
		Hub:           stack.Hub,
		RateStore:     stack.RateStore,
		HealthChecks:  checks,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			select {
			case <-stopCtx.Done():
			case <-ctx.Done():
				log.Warn("maintenance jobs still running at shutdown")
			}
		}
	}

	if s.Sequencer != nil {
		s.Sequencer.Stop()
	}

	if s.Hub != nil {
		s.Hub.Close()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.OpenConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
