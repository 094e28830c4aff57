package app

import (
	"github.com/charlesng35/careerhub/pkg/logger"
)

const serviceName = "careerhub"

// ConfigureLogging installs the global logger described by the server settings.
func ConfigureLogging(cfg ServerConfig) error {
	return logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: serviceName,
	})
}
