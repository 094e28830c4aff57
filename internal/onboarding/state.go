package onboarding

import (
	"time"

	"github.com/charlesng35/careerhub/internal/models"
	"github.com/charlesng35/careerhub/internal/notifications"
)

// Stage is one of the ordered onboarding notifications.
type Stage string

const (
	StageWelcome  Stage = "welcome"
	StageBonus    Stage = "bonus"
	StageFeatures Stage = "features"
	StageTips     Stage = "tips"
)

// postClaimStages fire in this order once the bonus is claimed.
var postClaimStages = []Stage{StageBonus, StageFeatures, StageTips}

// ParseStage maps a stored stage name back to a Stage.
func ParseStage(value string) (Stage, bool) {
	switch Stage(value) {
	case StageWelcome, StageBonus, StageFeatures, StageTips:
		return Stage(value), true
	}
	return "", false
}

func (s Stage) column() string {
	return string(s) + "_sent_at"
}

func (s Stage) template() string {
	switch s {
	case StageWelcome:
		return notifications.TemplateWelcome
	case StageBonus:
		return notifications.TemplateBonusAwarded
	case StageFeatures:
		return notifications.TemplateFeatureIntro
	default:
		return notifications.TemplateTips
	}
}

// State is the user's position in the onboarding sequence.
type State string

const (
	StateNew              State = "NEW"
	StateWelcomeSent      State = "WELCOME_SENT"
	StateBonusClaimed     State = "BONUS_CLAIMED"
	StateBonusNotified    State = "BONUS_NOTIFIED"
	StateFeaturesNotified State = "FEATURES_NOTIFIED"
	StateTipsNotified     State = "TIPS_NOTIFIED"
)

// Terminal reports whether no further stage can fire.
func (s State) Terminal() bool { return s == StateTipsNotified }

// StateOf derives the state from a durable progress row. A nil row is NEW.
func StateOf(p *models.OnboardingProgress) State {
	switch {
	case p == nil:
		return StateNew
	case p.TipsSentAt != nil:
		return StateTipsNotified
	case p.FeaturesSentAt != nil:
		return StateFeaturesNotified
	case p.BonusSentAt != nil:
		return StateBonusNotified
	case p.BonusClaimedAt != nil:
		return StateBonusClaimed
	case p.WelcomeSentAt != nil:
		return StateWelcomeSent
	default:
		return StateNew
	}
}

func sentAt(p *models.OnboardingProgress, stage Stage) *time.Time {
	switch stage {
	case StageWelcome:
		return p.WelcomeSentAt
	case StageBonus:
		return p.BonusSentAt
	case StageFeatures:
		return p.FeaturesSentAt
	default:
		return p.TipsSentAt
	}
}

func setSentAt(p *models.OnboardingProgress, stage Stage, at time.Time) {
	switch stage {
	case StageWelcome:
		p.WelcomeSentAt = &at
	case StageBonus:
		p.BonusSentAt = &at
	case StageFeatures:
		p.FeaturesSentAt = &at
	default:
		p.TipsSentAt = &at
	}
}

// nextDue returns the first unsent post-claim stage and when it falls due.
func nextDue(p *models.OnboardingProgress, cfg Config) (Stage, time.Time, bool) {
	if p == nil || p.BonusClaimedAt == nil {
		return "", time.Time{}, false
	}
	for _, stage := range postClaimStages {
		if sentAt(p, stage) == nil {
			return stage, p.BonusClaimedAt.Add(cfg.delay(stage)), true
		}
	}
	return "", time.Time{}, false
}

// Progress is the externally visible view of a user's onboarding.
type Progress struct {
	UserID         string               `json:"user_id"`
	UserName       string               `json:"user_name,omitempty"`
	State          State                `json:"state"`
	BonusClaimedAt *time.Time           `json:"bonus_claimed_at,omitempty"`
	Sent           map[Stage]*time.Time `json:"sent"`
	NextStage      Stage                `json:"next_stage,omitempty"`
	NextStageDueAt *time.Time           `json:"next_stage_due_at,omitempty"`
	OptedOut       bool                 `json:"opted_out"`
}

func progressView(userID string, p *models.OnboardingProgress) Progress {
	view := Progress{
		UserID: userID,
		State:  StateOf(p),
		Sent:   map[Stage]*time.Time{},
	}
	if p == nil {
		return view
	}
	view.UserName = p.UserName
	view.BonusClaimedAt = p.BonusClaimedAt
	view.OptedOut = p.OptedOut
	for _, stage := range []Stage{StageWelcome, StageBonus, StageFeatures, StageTips} {
		view.Sent[stage] = sentAt(p, stage)
	}
	if stage, ok := ParseStage(p.NextStage); ok {
		view.NextStage = stage
		view.NextStageDueAt = p.NextStageDueAt
	}
	return view
}
