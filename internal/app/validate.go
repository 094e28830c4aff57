package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports every configuration problem at once. The JWT secret has no
// default: tokens are minted by the account service and must verify here.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	var errs error
	c.Auth.JWT.Secret = strings.TrimSpace(c.Auth.JWT.Secret)
	if c.Auth.JWT.Secret == "" {
		errs = multierr.Append(errs, errors.New("auth.jwt.secret must be configured"))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if rl := c.Server.RateLimit; rl.Enabled && (rl.Requests <= 0 || rl.Window <= 0) {
		errs = multierr.Append(errs, errors.New("server.rate_limit needs positive requests and window when enabled"))
	}

	switch c.Database.OpenConfig().Driver {
	case "sqlite", "postgres", "mysql":
	default:
		errs = multierr.Append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}

	ob := c.Onboarding
	if ob.JitterMin < 0 || ob.JitterMax < ob.JitterMin {
		errs = multierr.Append(errs, fmt.Errorf("onboarding jitter range [%s, %s] is invalid", ob.JitterMin, ob.JitterMax))
	}
	for key, spec := range map[string]string{
		"onboarding.sweep_schedule":       ob.SweepSchedule,
		"onboarding.cache_purge_schedule": ob.PurgeSchedule,
	} {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		if _, err := cronParser.Parse(spec); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	n := c.Notifications
	if n.DefaultPageSize < 0 || n.MaxPageSize < 0 || (n.MaxPageSize > 0 && n.DefaultPageSize > n.MaxPageSize) {
		errs = multierr.Append(errs, fmt.Errorf("notifications page sizes default=%d max=%d are inconsistent", n.DefaultPageSize, n.MaxPageSize))
	}

	return errs
}
