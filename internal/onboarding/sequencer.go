package onboarding

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/careerhub/internal/models"
	"github.com/charlesng35/careerhub/internal/notifications"
	"github.com/charlesng35/careerhub/internal/services"
	appErrors "github.com/charlesng35/careerhub/pkg/errors"
	"github.com/charlesng35/careerhub/pkg/logger"
	"github.com/charlesng35/careerhub/pkg/metrics"
)

const taskTimeout = 30 * time.Second

// Ledger grants and inspects the one-time welcome bonus.
type Ledger interface {
	AwardOnce(ctx context.Context, userID string) (services.AwardResult, error)
	HasBonus(ctx context.Context, userID string) (bool, error)
	UsersWithoutBonus(ctx context.Context, since time.Time, limit int) ([]models.User, error)
}

// LanguageSource resolves the language a notification is rendered in.
type LanguageSource interface {
	CurrentLanguage(ctx context.Context, userID string) string
}

// Renderer turns a template key into localized copy.
type Renderer interface {
	Resolve(language, key string, vars map[string]any) notifications.Rendered
}

// Sink persists user-visible notifications.
type Sink interface {
	Create(ctx context.Context, input services.CreateNotificationInput) (*services.NotificationDTO, error)
}

// Users looks up profiles; a missing user yields errors.ErrUserNotFound.
type Users interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Dependencies are the collaborators a Sequencer drives.
type Dependencies struct {
	Ledger    Ledger
	Languages LanguageSource
	Templates Renderer
	Sink      Sink
	Users     Users
}

// ClaimResult reports the outcome of an explicit bonus claim.
type ClaimResult struct {
	Granted  bool   `json:"granted"`
	Amount   int64  `json:"amount"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// SweepReport summarises one sweep pass.
type SweepReport struct {
	WelcomesScheduled int `json:"welcomes_scheduled"`
	ClaimsRecovered   int `json:"claims_recovered"`
	UsersAdvanced     int `json:"users_advanced"`
}

// Sequencer delivers the onboarding stages for each user in order. Work for a
// single user is serialized by a keyed lock; durable progress rows make stage
// completion survive restarts and guard against duplicate sends.
type Sequencer struct {
	cfg       Config
	ledger    Ledger
	languages LanguageSource
	templates Renderer
	sink      Sink
	users     Users
	store     *progressStore
	scheduler Scheduler
	locks     *keyedMutex
	now       func() time.Time
	jitter    func() time.Duration
	log       *zap.Logger
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithScheduler replaces the default TimerScheduler.
func WithScheduler(scheduler Scheduler) Option {
	return func(s *Sequencer) {
		if scheduler != nil {
			s.scheduler = scheduler
		}
	}
}

// WithJitter overrides the delay applied to swept welcome stages.
func WithJitter(fn func() time.Duration) Option {
	return func(s *Sequencer) {
		if fn != nil {
			s.jitter = fn
		}
	}
}

// NewSequencer wires a Sequencer over the progress table in db.
func NewSequencer(db *gorm.DB, deps Dependencies, cfg Config, opts ...Option) (*Sequencer, error) {
	if db == nil {
		return nil, errors.New("onboarding: db is required")
	}
	if deps.Ledger == nil || deps.Languages == nil || deps.Templates == nil || deps.Sink == nil || deps.Users == nil {
		return nil, errors.New("onboarding: ledger, languages, templates, sink and users are required")
	}

	cfg = cfg.withDefaults()
	s := &Sequencer{
		cfg:       cfg,
		ledger:    deps.Ledger,
		languages: deps.Languages,
		templates: deps.Templates,
		sink:      deps.Sink,
		users:     deps.Users,
		store:     &progressStore{db: db},
		locks:     newKeyedMutex(),
		now:       time.Now,
		log:       logger.WithModule("onboarding"),
	}
	s.jitter = func() time.Duration {
		spread := int64(cfg.JitterMax - cfg.JitterMin)
		if spread <= 0 {
			return cfg.JitterMin
		}
		return cfg.JitterMin + time.Duration(rand.Int64N(spread+1))
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scheduler == nil {
		s.scheduler = NewTimerScheduler()
	}
	return s, nil
}

// Claim awards the welcome bonus and schedules the post-claim stages. A user
// who already holds the bonus gets Granted=false and nothing is scheduled.
func (s *Sequencer) Claim(ctx context.Context, userID string) (ClaimResult, error) {
	ctx = ensureContext(ctx)
	user, err := s.users.GetByID(ctx, strings.TrimSpace(userID))
	if err != nil {
		return ClaimResult{}, err
	}

	unlock := s.locks.Lock(user.ID)
	defer unlock()

	result := ClaimResult{UserID: user.ID, UserName: user.Username}
	progress, err := s.store.ensure(ctx, user, s.now().UTC())
	if err != nil {
		return result, err
	}

	if progress.WelcomeSentAt == nil && progress.BonusClaimedAt == nil && !progress.OptedOut {
		has, err := s.ledger.HasBonus(ctx, user.ID)
		if err != nil {
			return result, err
		}
		if !has {
			if _, err := s.fire(ctx, user, progress, StageWelcome); err != nil {
				return result, err
			}
		}
	}

	award, err := s.ledger.AwardOnce(ctx, user.ID)
	if err != nil {
		return result, err
	}
	if !award.Granted {
		return result, nil
	}
	result.Granted = true
	result.Amount = award.Amount

	claimedAt := award.AwardedAt.UTC()
	marked, err := s.store.markClaimed(ctx, user.ID, award.Amount, claimedAt, claimedAt.Add(s.cfg.BonusDelay))
	if err != nil {
		// The next sweep recovers the claim from the ledger.
		s.log.Error("bonus granted but claim not recorded", logger.UserID(user.ID), zap.Error(err))
		return result, nil
	}
	if !marked {
		return result, nil
	}

	progress.BonusClaimedAt = &claimedAt
	progress.BonusAmount = award.Amount
	if !progress.OptedOut {
		s.schedulePending(user.ID, progress)
	}
	s.log.Info("welcome bonus claimed", logger.UserID(user.ID), zap.Int64("amount", award.Amount))
	return result, nil
}

// schedulePending queues a task for every unsent post-claim stage at its due time.
func (s *Sequencer) schedulePending(userID string, progress *models.OnboardingProgress) {
	if progress.BonusClaimedAt == nil {
		return
	}
	now := s.now()
	for _, stage := range postClaimStages {
		if sentAt(progress, stage) != nil {
			continue
		}
		due := progress.BonusClaimedAt.Add(s.cfg.delay(stage))
		s.scheduler.Schedule(userID, stage, due.Sub(now), func() { s.runAdvance(userID) })
	}
}

func (s *Sequencer) runAdvance(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	if err := s.Advance(ctx, userID); err != nil {
		s.log.Warn("stage task failed", logger.UserID(userID), zap.Error(err))
	}
}

func (s *Sequencer) runWelcome(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	if err := s.Welcome(ctx, userID); err != nil {
		s.log.Warn("welcome task failed", logger.UserID(userID), zap.Error(err))
	}
}

// Advance sends every post-claim stage that is due, in order, and schedules
// the next one. It stops at the first stage that could not be sent.
func (s *Sequencer) Advance(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)
	unlock := s.locks.Lock(userID)
	defer unlock()

	progress, err := s.store.get(ctx, userID)
	if err != nil {
		return err
	}
	if progress == nil || progress.OptedOut {
		return nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, appErrors.ErrUserNotFound) {
		s.scheduler.CancelUser(userID)
		return nil
	}
	if err != nil {
		return err
	}

	for {
		stage, due, ok := nextDue(progress, s.cfg)
		if !ok {
			return nil
		}
		if now := s.now(); due.After(now) {
			s.scheduler.Schedule(userID, stage, due.Sub(now), func() { s.runAdvance(userID) })
			return nil
		}
		sent, err := s.fire(ctx, user, progress, stage)
		if err != nil || !sent {
			return err
		}
	}
}

// Welcome sends the welcome stage to a user who holds no bonus and has not
// been welcomed yet.
func (s *Sequencer) Welcome(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)
	unlock := s.locks.Lock(userID)
	defer unlock()

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, appErrors.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	has, err := s.ledger.HasBonus(ctx, user.ID)
	if err != nil || has {
		return err
	}

	progress, err := s.store.ensure(ctx, user, s.now().UTC())
	if err != nil {
		return err
	}
	if progress.OptedOut || progress.WelcomeSentAt != nil {
		return nil
	}
	_, err = s.fire(ctx, user, progress, StageWelcome)
	return err
}

// fire sends one stage under a lease and marks it sent. A send failure is
// logged and leaves the stage unsent for a later retry; only storage errors
// are returned. The caller holds the user's lock.
func (s *Sequencer) fire(ctx context.Context, user *models.User, progress *models.OnboardingProgress, stage Stage) (bool, error) {
	now := s.now().UTC()
	log := s.log.With(logger.UserID(user.ID), zap.String("stage", string(stage)))

	leased, err := s.store.acquireLease(ctx, user.ID, stage, now, now.Add(s.cfg.StageLease))
	if err != nil {
		metrics.OnboardingStages.WithLabelValues(string(stage), "failed").Inc()
		return false, err
	}
	if !leased {
		metrics.OnboardingStages.WithLabelValues(string(stage), "skipped").Inc()
		log.Debug("stage already sent or leased elsewhere")
		return false, nil
	}

	language := s.languages.CurrentLanguage(ctx, user.ID)
	payload := stagePayload(stage, user, progress)
	rendered := s.templates.Resolve(language, stage.template(), payload.Vars())

	if _, err := s.sink.Create(ctx, services.CreateNotificationInput{
		UserID:  user.ID,
		Type:    stage.template(),
		Title:   rendered.Title,
		Message: rendered.Message,
		Payload: payload,
		Actor:   &systemActor,
		Target:  stageTarget(stage, user),
	}); err != nil {
		metrics.OnboardingStages.WithLabelValues(string(stage), "failed").Inc()
		log.Error("onboarding stage send failed", zap.Error(err))
		if err := s.store.releaseLease(ctx, user.ID); err != nil {
			log.Warn("release stage lease", zap.Error(err))
		}
		return false, nil
	}

	setSentAt(progress, stage, now)
	next, due, ok := nextDue(progress, s.cfg)
	var nextDueAt *time.Time
	if ok {
		nextDueAt = &due
	}
	marked, err := s.store.markSent(ctx, user.ID, stage, now, language, next, nextDueAt)
	if err != nil {
		log.Error("stage sent but not recorded", zap.Error(err))
		return false, err
	}
	if !marked {
		log.Warn("stage was already recorded as sent")
	}
	progress.Language = language
	progress.NextStage = string(next)
	progress.NextStageDueAt = nextDueAt
	progress.LeaseUntil = nil

	metrics.OnboardingStages.WithLabelValues(string(stage), "sent").Inc()
	log.Info("onboarding stage sent", zap.String("language", language))
	return true, nil
}

// Sweep schedules a jittered welcome for recent users without a bonus and
// advances claimed users whose next stage is overdue. Failures for one user
// never stop the pass; they are aggregated into the returned error.
func (s *Sequencer) Sweep(ctx context.Context) (SweepReport, error) {
	ctx = ensureContext(ctx)
	var (
		report SweepReport
		errs   error
	)
	now := s.now().UTC()

	users, err := s.ledger.UsersWithoutBonus(ctx, now.Add(-s.cfg.SweepWindow), sweepBatchSize)
	errs = multierr.Append(errs, err)
	for _, user := range users {
		progress, err := s.store.get(ctx, user.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if progress != nil && (progress.WelcomeSentAt != nil || progress.OptedOut) {
			continue
		}
		userID := user.ID
		if s.scheduler.Schedule(userID, StageWelcome, s.jitter(), func() { s.runWelcome(userID) }) {
			report.WelcomesScheduled++
		}
	}

	recovered, err := s.recoverClaims(ctx)
	errs = multierr.Append(errs, err)
	report.ClaimsRecovered = recovered

	due, err := s.store.pending(ctx, &now, sweepBatchSize)
	errs = multierr.Append(errs, err)
	for _, row := range due {
		if err := s.Advance(ctx, row.UserID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("advance %s: %w", row.UserID, err))
			continue
		}
		report.UsersAdvanced++
	}

	s.log.Debug("sweep finished",
		zap.Int("welcomes_scheduled", report.WelcomesScheduled),
		zap.Int("claims_recovered", report.ClaimsRecovered),
		zap.Int("users_advanced", report.UsersAdvanced),
		zap.Error(errs),
	)
	return report, errs
}

// recoverClaims records claims for users the ledger credited but whose
// progress row missed the claim, pointing them at the bonus stage.
func (s *Sequencer) recoverClaims(ctx context.Context) (int, error) {
	claims, err := s.store.unrecordedClaims(ctx, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	var errs error
	recovered := 0
	for _, claim := range claims {
		unlock := s.locks.Lock(claim.UserID)
		marked, err := s.store.markClaimed(ctx, claim.UserID, claim.Amount, claim.AwardedAt, claim.AwardedAt.Add(s.cfg.BonusDelay))
		unlock()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("recover claim %s: %w", claim.UserID, err))
			continue
		}
		if marked {
			recovered++
			s.log.Warn("recovered unrecorded bonus claim", logger.UserID(claim.UserID))
		}
	}
	return recovered, errs
}

// Resume reschedules every claimed user's pending stage at its durable due
// time. Run it once at startup so stages queued before a restart still fire.
func (s *Sequencer) Resume(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.store.pending(ctx, nil, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	now := s.now()
	resumed := 0
	for _, row := range rows {
		stage, ok := ParseStage(row.NextStage)
		if !ok || row.NextStageDueAt == nil {
			continue
		}
		userID := row.UserID
		if s.scheduler.Schedule(userID, stage, row.NextStageDueAt.Sub(now), func() { s.runAdvance(userID) }) {
			resumed++
		}
	}
	if resumed > 0 {
		s.log.Info("resumed pending onboarding stages", zap.Int("users", resumed))
	}
	return resumed, nil
}

// Cancel opts the user out of the remaining sequence and drops pending tasks.
func (s *Sequencer) Cancel(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)
	unlock := s.locks.Lock(userID)
	defer unlock()

	dropped := s.scheduler.CancelUser(userID)
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, appErrors.ErrUserNotFound) {
		return s.store.delete(ctx, userID)
	}
	if err != nil {
		return err
	}
	if _, err := s.store.ensure(ctx, user, s.now().UTC()); err != nil {
		return err
	}
	if err := s.store.optOut(ctx, userID); err != nil {
		return err
	}
	s.log.Info("onboarding cancelled", logger.UserID(userID), zap.Int("dropped_tasks", dropped))
	return nil
}

// Forget drops pending tasks and progress for a deleted user.
func (s *Sequencer) Forget(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)
	unlock := s.locks.Lock(userID)
	defer unlock()

	s.scheduler.CancelUser(userID)
	return s.store.delete(ctx, userID)
}

// Status returns the user's current onboarding progress.
func (s *Sequencer) Status(ctx context.Context, userID string) (Progress, error) {
	ctx = ensureContext(ctx)
	progress, err := s.store.get(ctx, userID)
	if err != nil {
		return Progress{}, err
	}
	return progressView(userID, progress), nil
}

// Flush runs every pending task immediately. Short-lived processes call it
// before exiting so jittered welcomes are not lost.
func (s *Sequencer) Flush() {
	s.scheduler.Flush()
}

// Stop cancels pending tasks and waits for running ones.
func (s *Sequencer) Stop() {
	s.scheduler.Stop()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
