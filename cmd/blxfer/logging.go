package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blxfer/pkg/config"
)

var cliLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// configureLogger builds the diagnostic logger on stderr. --log-level wins over --verbose,
// and both win over log_level from a config file. With none of them the logger stays silent
// so stdout only carries the services table and the event log.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	verbose, _ := cmd.Flags().GetBool("verbose")
	path, _ := cmd.Flags().GetString("config")

	switch {
	case level != "":
		if !cliLogLevels[level] {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
		}
		cfg.LogLevel = level
	case verbose:
		cfg.LogLevel = "debug"
	}

	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	if level == "" && !verbose && path == "" {
		logger.SetLevel(logrus.PanicLevel)
	}
	return logger, nil
}
