package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/charlesng35/careerhub/internal/app"
	"github.com/charlesng35/careerhub/internal/cache"
	"github.com/charlesng35/careerhub/internal/database"
	"github.com/charlesng35/careerhub/internal/notifications"
	"github.com/charlesng35/careerhub/internal/onboarding"
	"github.com/charlesng35/careerhub/internal/services"
)

// environment is the slice of the runtime stack the CLI drives. Notifications
// are written without a realtime hub; connected clients pick them up on their
// next poll.
type environment struct {
	db        *gorm.DB
	users     *services.UserService
	ledger    *services.BonusLedger
	sequencer *onboarding.Sequencer
}

func openEnvironment(opts *rootOptions) (*environment, error) {
	if path := strings.TrimSpace(opts.envFile); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %q: %w", path, err)
		}
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := app.ConfigureLogging(cfg.Server); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	db, err := database.Open(cfg.Database.OpenConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	env := &environment{db: db}

	if err := database.AutoMigrate(db); err != nil {
		env.Close()
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	users, err := services.NewUserService(db)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.users = users
	ledger, err := services.NewBonusLedger(db, cfg.Onboarding.Amount())
	if err != nil {
		env.Close()
		return nil, err
	}
	env.ledger = ledger
	notifier, err := services.NewNotificationService(db, nil)
	if err != nil {
		env.Close()
		return nil, err
	}
	resolver, err := notifications.DefaultResolver()
	if err != nil {
		env.Close()
		return nil, err
	}

	env.sequencer, err = onboarding.NewSequencer(db, onboarding.Dependencies{
		Ledger:    ledger,
		Languages: services.NewLanguageProvider(users, cache.NewDatabaseStore(db), cfg.Language.CacheTTL),
		Templates: resolver,
		Sink:      notifier,
		Users:     users,
	}, cfg.Onboarding.SequencerConfig())
	if err != nil {
		env.Close()
		return nil, err
	}
	users.OnDelete(env.sequencer.Forget)
	return env, nil
}

// Close stops pending stage timers and releases the database.
func (e *environment) Close() {
	if e.sequencer != nil {
		e.sequencer.Stop()
	}
	if e.db != nil {
		if sqlDB, err := e.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func loadConfig(path string) (*app.Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return app.LoadConfig()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config path %q: %w", path, err)
	}
	if info.IsDir() {
		return app.LoadConfig(path)
	}
	return app.LoadConfig(filepath.Dir(path))
}
