package main

import (
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blewatch",
	Short: "Passive BLE device discovery with battery-aware duty cycling",
	Long: `Passive discovery of nearby Bluetooth Low Energy devices.

blewatch runs periodic radio scans, deduplicates the advertisement stream
into a live device registry, aggregates it into time-series statistics, and
persists detections, sessions, and aggregates to a local SQLite history for
later visualization.

Scanning alternates active and rest phases according to a configurable
battery profile, so long-running discovery stays within a power budget.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", formatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(sessionsCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("db", "", "SQLite history file (overrides config)")
}
