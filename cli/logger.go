package cli

import (
	"github.com/sirupsen/logrus"

	"github.com/grovetools/chordsync/config"
	"github.com/grovetools/chordsync/logging"
)

// ConfigureLogging applies the logging section of cfg to every logger.
// verbose forces debug level.
func ConfigureLogging(cfg *config.Config, verbose bool) error {
	var logCfg logging.Config
	if cfg != nil {
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			return err
		}
	}
	if verbose {
		logCfg.Level = logrus.DebugLevel.String()
	}
	logging.SetConfig(logCfg)
	return nil
}
