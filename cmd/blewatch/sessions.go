package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Show recent scan sessions",
	RunE:  runSessions,
}

var sessionsLimit int

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum sessions to show")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	gateway, err := openGateway(cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer gateway.Close()

	sessions, err := gateway.RecentSessions(sessionsLimit)
	if err != nil {
		return fmt.Errorf("failed to query sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions stored.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTARTED\tDURATION\tDEVICES\tSTATE")
	for _, s := range sessions {
		state := "ended"
		if s.IsActive() {
			state = "active"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.StartTime.Format(time.RFC3339),
			s.Duration.Round(time.Millisecond), s.DevicesDiscovered, state)
	}
	return w.Flush()
}
