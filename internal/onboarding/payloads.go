package onboarding

import (
	"github.com/charlesng35/careerhub/internal/models"
	"github.com/charlesng35/careerhub/internal/notifications"
	"github.com/charlesng35/careerhub/internal/services"
)

const bonusCurrency = "coins"

var systemActor = services.Actor{ID: "careerhub", Name: "CareerHub"}

var introducedFeatures = []notifications.Feature{
	{Key: "resume_builder", URL: "/resumes"},
	{Key: "cover_letters", URL: "/cover-letters"},
	{Key: "articles", URL: "/articles"},
}

var resumeTips = []string{
	"tailor_to_job_description",
	"quantify_achievements",
	"keep_it_to_one_page",
}

func stagePayload(stage Stage, user *models.User, progress *models.OnboardingProgress) notifications.Payload {
	switch stage {
	case StageWelcome:
		return notifications.WelcomePayload{
			UserName: user.Username,
			Actions:  []notifications.Action{{Label: "claim_bonus", URL: "/welcome"}},
		}
	case StageBonus:
		payload := notifications.BonusAwardedPayload{
			Amount:   progress.BonusAmount,
			Currency: bonusCurrency,
		}
		if progress.BonusClaimedAt != nil {
			payload.AwardedAt = *progress.BonusClaimedAt
		}
		return payload
	case StageFeatures:
		return notifications.FeatureIntroPayload{
			UserName: user.Username,
			Features: introducedFeatures,
		}
	default:
		return notifications.TipsPayload{Tips: resumeTips, URL: "/articles"}
	}
}

func stageTarget(stage Stage, user *models.User) *services.Target {
	switch stage {
	case StageWelcome:
		return &services.Target{Type: "page", ID: "welcome", Slug: "welcome"}
	case StageBonus:
		return &services.Target{Type: "wallet", ID: user.ID, Slug: "wallet"}
	case StageFeatures:
		return &services.Target{Type: "page", ID: "dashboard", Slug: "dashboard"}
	default:
		return &services.Target{Type: "article", ID: "resume-tips", Slug: "resume-tips"}
	}
}
