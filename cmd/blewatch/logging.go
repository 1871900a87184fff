package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// configureLogger creates a logger with the level taken from --log-level,
// falling back to the config file's level, defaulting to quiet operation so
// normal CLI output stays clean.
func configureLogger(cmd *cobra.Command, configLevel string) (*logrus.Logger, error) {
	level := logrus.WarnLevel

	if configLevel != "" {
		parsed, err := logrus.ParseLevel(configLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level in config: %s", configLevel)
		}
		level = parsed
	}

	if flagLevel, _ := cmd.Flags().GetString("log-level"); flagLevel != "" {
		parsed, err := logrus.ParseLevel(flagLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", flagLevel)
		}
		level = parsed
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}
