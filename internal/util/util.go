package util

import (
	log "github.com/sirupsen/logrus"

	"github.com/optisuite/optisuite/internal/config"
)

// SetLogLevel applies the log level implied by the configuration.
func SetLogLevel(cfg *config.Config) {
	if cfg != nil && cfg.Debug {
		log.SetLevel(log.DebugLevel)
		return
	}
	log.SetLevel(log.InfoLevel)
}
