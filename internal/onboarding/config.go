package onboarding

import "time"

const (
	DefaultBonusDelay    = 500 * time.Millisecond
	DefaultFeaturesDelay = 30 * time.Second
	DefaultTipsDelay     = 120 * time.Second
	DefaultSweepWindow   = 15 * time.Minute
	DefaultJitterMin     = time.Second
	DefaultJitterMax     = 7 * time.Second
	DefaultStageLease    = 2 * time.Minute

	sweepBatchSize = 500
)

// Config controls stage timing. Stage delays are measured from the bonus claim.
type Config struct {
	BonusDelay    time.Duration
	FeaturesDelay time.Duration
	TipsDelay     time.Duration
	// SweepWindow bounds how far back a sweep looks for users without a bonus.
	SweepWindow time.Duration
	// JitterMin and JitterMax bound the random delay before a swept welcome fires.
	JitterMin time.Duration
	JitterMax time.Duration
	// StageLease is how long one instance owns a stage send before others may retry it.
	StageLease time.Duration
}

// DefaultConfig returns the production stage timings.
func DefaultConfig() Config {
	return Config{
		BonusDelay:    DefaultBonusDelay,
		FeaturesDelay: DefaultFeaturesDelay,
		TipsDelay:     DefaultTipsDelay,
		SweepWindow:   DefaultSweepWindow,
		JitterMin:     DefaultJitterMin,
		JitterMax:     DefaultJitterMax,
		StageLease:    DefaultStageLease,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BonusDelay < 0 {
		c.BonusDelay = def.BonusDelay
	}
	if c.FeaturesDelay <= 0 {
		c.FeaturesDelay = def.FeaturesDelay
	}
	if c.TipsDelay <= 0 {
		c.TipsDelay = def.TipsDelay
	}
	if c.SweepWindow <= 0 {
		c.SweepWindow = def.SweepWindow
	}
	if c.JitterMin < 0 {
		c.JitterMin = 0
	}
	if c.JitterMax < c.JitterMin {
		c.JitterMax = c.JitterMin
	}
	if c.StageLease <= 0 {
		c.StageLease = def.StageLease
	}
	return c
}

// delay returns the offset from claim time at which stage becomes due.
func (c Config) delay(stage Stage) time.Duration {
	switch stage {
	case StageBonus:
		return c.BonusDelay
	case StageFeatures:
		return c.FeaturesDelay
	case StageTips:
		return c.TipsDelay
	default:
		return 0
	}
}
