package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blewatch/internal/store"
	"github.com/srg/blewatch/pkg/config"
)

// openGateway resolves the history database from --db (flag wins) or the
// config file. An empty path disables persistence.
func openGateway(cmd *cobra.Command, cfg *config.Config, logger *logrus.Logger) (store.Gateway, error) {
	path := cfg.Database
	if flagPath, _ := cmd.Flags().GetString("db"); cmd.Flags().Changed("db") {
		path = flagPath
	}

	if path == "" {
		return store.NewNop(), nil
	}
	return store.OpenSQLite(path, logger)
}
